package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/api"
)

func newTestClient(t *testing.T, r chi.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/api"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func sampleComment(id string) contract.Comment {
	return contract.Comment{ID: id, Content: "hello", User: contract.User{ID: "u1", Name: "Ann"}, LikesCount: 1, Likes: []string{"u1"}}
}

func TestFetchPage_TopLevelQuery(t *testing.T) {
	var gotQuery string
	r := chi.NewRouter()
	r.Get("/api/comments", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		api.WriteSuccess(w, http.StatusOK, contract.PageData{
			Comments:   []contract.Comment{sampleComment("c1")},
			Pagination: &contract.Pagination{CurrentPage: 2, TotalPages: 3, TotalComments: 21, Limit: 10},
		})
	})
	c := newTestClient(t, r)

	page, err := c.FetchPage(context.Background(), PageQuery{Page: 2, Limit: 10, Sort: contract.SortMostLiked, TopLevelOnly: true})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotQuery != "limit=10&page=2&parentComment=null&sort=mostLiked" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if len(page.Comments) != 1 || page.Pagination.CurrentPage != 2 || page.Pagination.TotalComments != 21 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestFetchPage_MissingPaginationIsProtocolError(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/comments", func(w http.ResponseWriter, r *http.Request) {
		api.WriteSuccess(w, http.StatusOK, map[string]any{"comments": []contract.Comment{}})
	})
	c := newTestClient(t, r)

	_, err := c.FetchPage(context.Background(), PageQuery{Page: 1, Limit: 10})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestCreate_NestedDataIsProtocolError(t *testing.T) {
	// data.data.comment is not accepted as data.comment
	r := chi.NewRouter()
	r.Post("/api/comments", func(w http.ResponseWriter, r *http.Request) {
		api.WriteSuccess(w, http.StatusCreated, map[string]any{"data": contract.CommentData{Comment: ptr(sampleComment("c1"))}})
	})
	c := newTestClient(t, r)

	_, err := c.Create(context.Background(), "hello", nil)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestCreate_SendsParent(t *testing.T) {
	var body contract.CreateCommentRequest
	r := chi.NewRouter()
	r.Post("/api/comments", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("expected request id header")
		}
		cm := sampleComment("r1")
		cm.ParentID = body.ParentComment
		api.WriteSuccess(w, http.StatusCreated, contract.CommentData{Comment: &cm})
	})
	c := newTestClient(t, r)

	got, err := c.Create(context.Background(), "hi", contract.StringPtr("c1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if body.ParentComment == nil || *body.ParentComment != "c1" {
		t.Fatalf("expected parentComment c1 in body, got %+v", body)
	}
	if got.Parent() != "c1" {
		t.Fatalf("expected reply of c1, got %q", got.Parent())
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"bad request", http.StatusBadRequest, ErrValidation},
		{"forbidden", http.StatusForbidden, ErrValidation},
		{"server", http.StatusInternalServerError, ErrServer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Put("/api/comments/{id}", func(w http.ResponseWriter, r *http.Request) {
				api.WriteError(w, tc.status, "X", "nope", "")
			})
			c := newTestClient(t, r)

			_, err := c.Update(context.Background(), "c1", "x")
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			var te *Error
			if !errors.As(err, &te) || te.Message != "nope" || te.Status != tc.status {
				t.Fatalf("unexpected error detail: %+v", te)
			}
		})
	}
}

func TestErrorEnvelopeWith200IsServerError(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/comments/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, api.Envelope{Status: api.StatusError, Message: "boom"})
	})
	c := newTestClient(t, r)

	_, err := c.Get(context.Background(), "c1")
	if !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	if UserMessage(err) != "boom" {
		t.Fatalf("expected message boom, got %q", UserMessage(err))
	}
}

func TestUnauthorizedHook(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		api.Unauthorized(w, "AUTH_MISSING", "Not authenticated", "")
	})
	c := newTestClient(t, r)
	c.SetOnUnauthorized(func() { calls.Add(1) })

	if _, err := c.Me(context.Background()); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected hook once, got %d", calls.Load())
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: base + "/api"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.FetchReplies(context.Background(), "c1", 1, 10)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestLike_WithAndWithoutComment(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/comments/{id}/like", func(w http.ResponseWriter, r *http.Request) {
		cm := sampleComment(chi.URLParam(r, "id"))
		api.WriteSuccess(w, http.StatusOK, contract.CommentData{Comment: &cm})
	})
	r.Post("/api/comments/{id}/dislike", func(w http.ResponseWriter, r *http.Request) {
		api.WriteSuccess(w, http.StatusOK, nil)
	})
	c := newTestClient(t, r)

	liked, err := c.Like(context.Background(), "c1")
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if liked.Comment == nil || liked.Comment.ID != "c1" {
		t.Fatalf("expected authoritative comment, got %+v", liked)
	}

	disliked, err := c.Dislike(context.Background(), "c1")
	if err != nil {
		t.Fatalf("dislike: %v", err)
	}
	if disliked.Comment != nil {
		t.Fatalf("expected no comment, got %+v", disliked.Comment)
	}
}

func TestRemove_NoContent(t *testing.T) {
	r := chi.NewRouter()
	r.Delete("/api/comments/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, r)

	if err := c.Remove(context.Background(), "c1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

func TestLogin_KeepsTokenAndLogoutClears(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		api.WriteSuccess(w, http.StatusOK, contract.UserData{User: &contract.User{ID: "u1", Name: "Ann"}, Token: "tok-1"})
	})
	r.Post("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		api.WriteSuccess(w, http.StatusOK, nil)
	})
	c := newTestClient(t, r)

	u, err := c.Login(context.Background(), "a@x", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.ID != "u1" || c.Token() != "tok-1" {
		t.Fatalf("unexpected login result: %+v token=%q", u, c.Token())
	}
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.Token() != "" {
		t.Fatal("expected token to be cleared")
	}
}

func TestWebsocketURL(t *testing.T) {
	if got := WebsocketURL("https://example.com/api"); got != "wss://example.com/ws" {
		t.Fatalf("unexpected %q", got)
	}
	if got := WebsocketURL("http://localhost:5000/api"); got != "ws://localhost:5000/ws" {
		t.Fatalf("unexpected %q", got)
	}
}

func ptr[T any](v T) *T { return &v }
