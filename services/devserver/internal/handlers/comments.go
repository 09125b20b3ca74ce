package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/api"
	"github.com/example/comment-sync/internal/platform/auth"
	"github.com/example/comment-sync/internal/platform/httpserver"
	"github.com/example/comment-sync/services/devserver/internal/events"
	"github.com/example/comment-sync/services/devserver/internal/store"
)

const maxBody = 1 << 20

// Comments serves the /comments routes and announces every mutation.
type Comments struct {
	Store  store.CommentStore
	Users  store.UserStore
	Events events.Broadcaster
	Log    *zap.Logger
}

// List handles GET /comments. parentComment=null (or omitted) selects
// top-level comments; an id selects that comment's replies.
func (h Comments) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		parent := strings.TrimSpace(q.Get("parentComment"))
		if parent == "null" {
			parent = ""
		}
		h.writePage(w, r, store.ListQuery{
			ParentID: parent,
			Sort:     strings.TrimSpace(q.Get("sort")),
			Page:     atoiDefault(q.Get("page"), 1),
			Limit:    atoiDefault(q.Get("limit"), 10),
		})
	}
}

// Replies handles GET /comments/{id}/replies.
func (h Comments) Replies() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if _, err := h.Store.Get(r.Context(), id); err != nil {
			h.storeError(w, err, rid)
			return
		}
		q := r.URL.Query()
		h.writePage(w, r, store.ListQuery{
			ParentID: id,
			Page:     atoiDefault(q.Get("page"), 1),
			Limit:    atoiDefault(q.Get("limit"), 10),
		})
	}
}

func (h Comments) writePage(w http.ResponseWriter, r *http.Request, lq store.ListQuery) {
	rid := httpserver.RequestIDFromContext(r.Context())
	if lq.Limit > 100 {
		lq.Limit = 100
	}
	if lq.Limit < 1 {
		lq.Limit = 10
	}
	if lq.Page < 1 {
		lq.Page = 1
	}
	list, total, err := h.Store.List(r.Context(), lq)
	if err != nil {
		h.Log.Error("list comments failed", zap.Error(err), zap.String("request_id", rid))
		api.Internal(w, rid)
		return
	}
	api.WriteSuccess(w, http.StatusOK, contract.PageData{
		Comments: list,
		Pagination: &contract.Pagination{
			CurrentPage:   lq.Page,
			TotalPages:    totalPages(total, lq.Limit),
			TotalComments: total,
			Limit:         lq.Limit,
		},
	})
}

// Get handles GET /comments/{id}.
func (h Comments) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		c, err := h.Store.Get(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
		if err != nil {
			h.storeError(w, err, rid)
			return
		}
		api.WriteSuccess(w, http.StatusOK, contract.CommentData{Comment: &c})
	}
}

// Create handles POST /comments.
func (h Comments) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}

		var req contract.CreateCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid)
			return
		}
		content, msg := validContent(req.Content)
		if msg != "" {
			api.BadRequest(w, "INVALID_CONTENT", msg, rid)
			return
		}
		var parentID *string
		if req.ParentComment != nil {
			parentID = contract.StringPtr(strings.TrimSpace(*req.ParentComment))
		}

		author, err := h.Users.UserByID(r.Context(), userID)
		if err != nil {
			api.Unauthorized(w, "AUTH_INVALID", "user no longer exists", rid)
			return
		}
		c, err := h.Store.Create(r.Context(), author, content, parentID)
		if err != nil {
			h.storeError(w, err, rid)
			return
		}
		h.Events.Broadcast(contract.CommentCreated{Comment: c, ParentID: c.ParentID})
		api.WriteSuccess(w, http.StatusCreated, contract.CommentData{Comment: &c})
	}
}

// Update handles PUT /comments/{id}.
func (h Comments) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}

		var req contract.UpdateCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid)
			return
		}
		content, msg := validContent(req.Content)
		if msg != "" {
			api.BadRequest(w, "INVALID_CONTENT", msg, rid)
			return
		}

		c, err := h.Store.Update(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")), userID, content)
		if err != nil {
			h.storeError(w, err, rid)
			return
		}
		h.Events.Broadcast(contract.CommentUpdated{Comment: c})
		api.WriteSuccess(w, http.StatusOK, contract.CommentData{Comment: &c})
	}
}

// Delete handles DELETE /comments/{id}. Replies go with the comment.
func (h Comments) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}

		del, err := h.Store.Delete(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")), userID)
		if err != nil {
			h.storeError(w, err, rid)
			return
		}
		h.Events.Broadcast(contract.CommentDeleted{CommentID: del.Comment.ID, ParentID: del.Comment.ParentID})
		api.WriteSuccess(w, http.StatusOK, nil)
	}
}

// Like handles POST /comments/{id}/like.
func (h Comments) Like() http.HandlerFunc {
	return h.react(true)
}

// Dislike handles POST /comments/{id}/dislike.
func (h Comments) Dislike() http.HandlerFunc {
	return h.react(false)
}

func (h Comments) react(like bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}

		id := strings.TrimSpace(chi.URLParam(r, "id"))
		toggle := h.Store.Dislike
		if like {
			toggle = h.Store.Like
		}
		res, err := toggle(r.Context(), id, userID)
		if err != nil {
			h.storeError(w, err, rid)
			return
		}

		c := res.Comment
		if like {
			h.Events.Broadcast(contract.CommentLiked{
				CommentID: c.ID, LikesCount: c.LikesCount, DislikesCount: c.DislikesCount, Action: res.Action,
			})
		} else {
			h.Events.Broadcast(contract.CommentDisliked{
				CommentID: c.ID, LikesCount: c.LikesCount, DislikesCount: c.DislikesCount, Action: res.Action,
			})
		}
		api.WriteSuccess(w, http.StatusOK, contract.CommentData{Comment: &c})
	}
}

func (h Comments) storeError(w http.ResponseWriter, err error, rid string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "Comment not found", rid)
	case errors.Is(err, store.ErrParentNotFound):
		api.NotFound(w, "PARENT_NOT_FOUND", "Parent comment not found", rid)
	case errors.Is(err, store.ErrForbidden):
		api.Forbidden(w, "FORBIDDEN", "You can only modify your own comments", rid)
	default:
		h.Log.Error("comment store failed", zap.Error(err), zap.String("request_id", rid))
		api.Internal(w, rid)
	}
}

// validContent trims content and returns a message when it is unusable.
func validContent(raw string) (string, string) {
	content := strings.TrimSpace(raw)
	switch {
	case content == "":
		return "", "Comment content is required"
	case utf8.RuneCountInString(content) > contract.MaxContentLength:
		return "", "Comment cannot exceed " + strconv.Itoa(contract.MaxContentLength) + " characters"
	}
	return content, ""
}

func atoiDefault(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// totalPages never reports fewer than one page.
func totalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
