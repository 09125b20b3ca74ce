package intents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/services/client/internal/store"
	"github.com/example/comment-sync/services/client/internal/transport"
)

// fakeAPI records calls and answers from its fields.
type fakeAPI struct {
	calls    []string
	created  contract.Comment
	updated  contract.Comment
	reaction transport.Reaction
	err      error
}

func (f *fakeAPI) Create(_ context.Context, content string, parentID *string) (contract.Comment, error) {
	f.calls = append(f.calls, "create:"+content)
	if f.err != nil {
		return contract.Comment{}, f.err
	}
	return f.created, nil
}

func (f *fakeAPI) Update(_ context.Context, id, content string) (contract.Comment, error) {
	f.calls = append(f.calls, "update:"+id)
	if f.err != nil {
		return contract.Comment{}, f.err
	}
	return f.updated, nil
}

func (f *fakeAPI) Remove(_ context.Context, id string) error {
	f.calls = append(f.calls, "remove:"+id)
	return f.err
}

func (f *fakeAPI) Like(_ context.Context, id string) (transport.Reaction, error) {
	f.calls = append(f.calls, "like:"+id)
	return f.reaction, f.err
}

func (f *fakeAPI) Dislike(_ context.Context, id string) (transport.Reaction, error) {
	f.calls = append(f.calls, "dislike:"+id)
	return f.reaction, f.err
}

func seeded(ids ...string) *store.Store {
	st := store.New(store.Options{Viewer: "me"})
	var list []contract.Comment
	for _, id := range ids {
		list = append(list, contract.Comment{ID: id, Content: id, Likes: []string{}, Dislikes: []string{}})
	}
	st.ReplaceFeed(list, contract.Pagination{CurrentPage: 1, TotalPages: 1, TotalComments: len(ids), Limit: 10}, "")
	return st
}

func TestValidate_Boundary(t *testing.T) {
	ok := strings.Repeat("a", contract.MaxContentLength)
	if _, err := Validate(ok); err != nil {
		t.Fatalf("1000 characters should pass: %v", err)
	}
	if _, err := Validate(ok + "a"); err == nil {
		t.Fatal("1001 characters should fail")
	}
	// multi-byte characters count once each
	if _, err := Validate(strings.Repeat("é", contract.MaxContentLength)); err != nil {
		t.Fatalf("1000 runes should pass: %v", err)
	}
	got, err := Validate("  padded  ")
	assert.Equal(t, nil, err)
	assert.Equal(t, "padded", got)
}

func TestCreate_RejectsWithoutNetwork(t *testing.T) {
	api := &fakeAPI{}
	d := NewDispatcher(api, seeded(), nil)

	for _, content := range []string{"", "   \n\t", strings.Repeat("x", contract.MaxContentLength+1)} {
		_, err := d.Create(context.Background(), content, nil)
		if !errors.Is(err, transport.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", content[:min(len(content), 8)], err)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected *ValidationError, got %T", err)
		}
	}
	assert.Equal(t, 0, len(api.calls))
}

func TestCreate_TopLevelInsertedOnce(t *testing.T) {
	api := &fakeAPI{created: contract.Comment{ID: "new", Content: "hi"}}
	st := seeded("old")
	d := NewDispatcher(api, st, nil)

	c, err := d.Create(context.Background(), " hi ", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assert.Equal(t, "new", c.ID)
	assert.Equal(t, []string{"create:hi"}, api.calls)

	// the push echo of the same comment is a no-op
	st.Apply(contract.CommentCreated{Comment: c})
	assert.Equal(t, 2, len(st.Feed()))
	assert.Equal(t, 2, st.Pagination().TotalComments)
}

func TestCreate_ReplyNotInsertedIntoFeed(t *testing.T) {
	api := &fakeAPI{created: contract.Comment{ID: "r1", Content: "re"}}
	st := seeded("p")
	d := NewDispatcher(api, st, nil)

	c, err := d.Create(context.Background(), "re", contract.StringPtr("p"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assert.Equal(t, "p", c.Parent())
	assert.Equal(t, 1, len(st.Feed()))
}

func TestUpdate_FailureLeavesStore(t *testing.T) {
	api := &fakeAPI{err: &transport.Error{Op: "update", Kind: transport.ErrAuth, Status: 401}}
	st := seeded("a")
	d := NewDispatcher(api, st, nil)

	_, err := d.Update(context.Background(), "a", "changed")
	if !errors.Is(err, transport.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	got, _ := st.Get("a")
	assert.Equal(t, "a", got.Content)
}

func TestUpdate_ReplacesInPlace(t *testing.T) {
	api := &fakeAPI{updated: contract.Comment{ID: "b", Content: "edited"}}
	st := seeded("a", "b", "c")
	d := NewDispatcher(api, st, nil)

	if _, err := d.Update(context.Background(), "b", "edited"); err != nil {
		t.Fatalf("update: %v", err)
	}
	feed := st.Feed()
	assert.Equal(t, "b", feed[1].ID)
	assert.Equal(t, "edited", feed[1].Content)
}

func TestDelete_RemovesAfterConfirmation(t *testing.T) {
	st := seeded("a", "b")
	failing := NewDispatcher(&fakeAPI{err: transport.ErrNetwork}, st, nil)
	if err := failing.Delete(context.Background(), "a"); err == nil {
		t.Fatal("expected error")
	}
	assert.Equal(t, 2, len(st.Feed()))

	d := NewDispatcher(&fakeAPI{}, st, nil)
	if err := d.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	st.Apply(contract.CommentDeleted{CommentID: "a"})
	assert.Equal(t, 1, len(st.Feed()))
	assert.Equal(t, 1, st.Pagination().TotalComments)
}

func TestLike_UsesServerCopy(t *testing.T) {
	server := contract.Comment{ID: "a", Content: "a", Likes: []string{"me"}, Dislikes: []string{}, LikesCount: 1}
	api := &fakeAPI{reaction: transport.Reaction{Comment: &server}}
	st := seeded("a")
	d := NewDispatcher(api, st, nil)

	if err := d.Like(context.Background(), "a"); err != nil {
		t.Fatalf("like: %v", err)
	}
	got, _ := st.Get("a")
	assert.Equal(t, true, got.Liked)
	assert.Equal(t, 1, got.LikesCount)
	assert.Equal(t, false, got.Provisional)
}

func TestDislike_DegradedTogglesProvisionally(t *testing.T) {
	api := &fakeAPI{}
	st := seeded("a")
	d := NewDispatcher(api, st, nil)

	if err := d.Dislike(context.Background(), "a"); err != nil {
		t.Fatalf("dislike: %v", err)
	}
	got, _ := st.Get("a")
	assert.Equal(t, true, got.Disliked)
	assert.Equal(t, 1, got.DislikesCount)
	assert.Equal(t, true, got.Provisional)
	assert.Equal(t, []string{"dislike:a"}, api.calls)
}

func TestLike_FailureChangesNothing(t *testing.T) {
	api := &fakeAPI{err: transport.ErrServer}
	st := seeded("a")
	d := NewDispatcher(api, st, nil)

	if err := d.Like(context.Background(), "a"); err == nil {
		t.Fatal("expected error")
	}
	got, _ := st.Get("a")
	assert.Equal(t, 0, got.LikesCount)
	assert.Equal(t, false, got.Liked)
}
