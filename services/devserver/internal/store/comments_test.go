package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/example/comment-sync/internal/contract"
)

var (
	_ CommentStore = (*InMemoryCommentStore)(nil)
	_ CommentStore = (*PostgresCommentStore)(nil)
	_ UserStore    = (*InMemoryUserStore)(nil)
	_ UserStore    = (*PostgresUserStore)(nil)
)

var (
	alice = contract.User{ID: "user-a", Name: "Alice", Email: "a@example.com"}
	bob   = contract.User{ID: "user-b", Name: "Bob", Email: "b@example.com"}
)

// newTestStore returns a store whose clock advances one second per call.
func newTestStore() *InMemoryCommentStore {
	s := NewInMemoryCommentStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
	return s
}

func TestInMemoryCommentStore_Create(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	c, err := s.Create(ctx, alice, "hello", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected non-empty id")
	}
	assert.Equal(t, "hello", c.Content)
	assert.Equal(t, alice, c.User)
	assert.Equal(t, 0, c.LikesCount)
	assert.Equal(t, []string{}, c.Likes)
	assert.Equal(t, false, c.IsReply())
}

func TestInMemoryCommentStore_CreateReply(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	root, _ := s.Create(ctx, alice, "root", nil)
	reply, err := s.Create(ctx, bob, "reply", contract.StringPtr(root.ID))
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}
	assert.Equal(t, root.ID, reply.Parent())

	got, _ := s.Get(ctx, root.ID)
	assert.Equal(t, 1, got.RepliesCount)

	if _, err := s.Create(ctx, bob, "orphan", contract.StringPtr("missing")); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound, got %v", err)
	}
}

func TestInMemoryCommentStore_ListScopesAndSorts(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	first, _ := s.Create(ctx, alice, "first", nil)
	second, _ := s.Create(ctx, alice, "second", nil)
	third, _ := s.Create(ctx, alice, "third", nil)
	r1, _ := s.Create(ctx, bob, "r1", contract.StringPtr(first.ID))
	r2, _ := s.Create(ctx, bob, "r2", contract.StringPtr(first.ID))

	_, _ = s.Like(ctx, second.ID, "u1")
	_, _ = s.Like(ctx, second.ID, "u2")
	_, _ = s.Like(ctx, first.ID, "u1")
	_, _ = s.Dislike(ctx, third.ID, "u1")

	top, total, err := s.List(ctx, ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, commentIDs(top))

	liked, _, _ := s.List(ctx, ListQuery{Sort: contract.SortMostLiked})
	assert.Equal(t, []string{second.ID, first.ID, third.ID}, commentIDs(liked))

	disliked, _, _ := s.List(ctx, ListQuery{Sort: contract.SortMostDisliked})
	assert.Equal(t, third.ID, disliked[0].ID)

	replies, total, _ := s.List(ctx, ListQuery{ParentID: first.ID})
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{r1.ID, r2.ID}, commentIDs(replies))
}

func TestInMemoryCommentStore_ListPaging(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, _ = s.Create(ctx, alice, "c", nil)
	}

	page2, total, _ := s.List(ctx, ListQuery{Page: 2, Limit: 5})
	assert.Equal(t, 12, total)
	assert.Equal(t, 5, len(page2))

	page3, _, _ := s.List(ctx, ListQuery{Page: 3, Limit: 5})
	assert.Equal(t, 2, len(page3))

	beyond, _, _ := s.List(ctx, ListQuery{Page: 9, Limit: 5})
	assert.Equal(t, 0, len(beyond))

	def, _, _ := s.List(ctx, ListQuery{Page: -1, Limit: 0, Sort: "bogus"})
	assert.Equal(t, 10, len(def))
}

func TestInMemoryCommentStore_Update_AuthorOnly(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	c, _ := s.Create(ctx, alice, "original", nil)

	if _, err := s.Update(ctx, c.ID, bob.ID, "hacked"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-author, got %v", err)
	}
	updated, err := s.Update(ctx, c.ID, alice.ID, "updated")
	if err != nil {
		t.Fatalf("author update: %v", err)
	}
	assert.Equal(t, "updated", updated.Content)
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatal("expected updatedAt to move forward")
	}
	if _, err := s.Update(ctx, "missing", alice.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryCommentStore_DeleteCascades(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	root, _ := s.Create(ctx, alice, "root", nil)
	reply, _ := s.Create(ctx, bob, "reply", contract.StringPtr(root.ID))
	nested, _ := s.Create(ctx, alice, "nested", contract.StringPtr(reply.ID))

	if _, err := s.Delete(ctx, root.ID, bob.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	del, err := s.Delete(ctx, root.ID, alice.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	assert.Equal(t, root.ID, del.Comment.ID)
	assert.Equal(t, 3, len(del.Removed))

	for _, id := range []string{root.ID, reply.ID, nested.ID} {
		if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s gone, got %v", id, err)
		}
	}
	if _, err := s.Delete(ctx, root.ID, alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestInMemoryCommentStore_DeleteReplyDecrementsParent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	root, _ := s.Create(ctx, alice, "root", nil)
	reply, _ := s.Create(ctx, bob, "reply", contract.StringPtr(root.ID))

	del, err := s.Delete(ctx, reply.ID, bob.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	assert.Equal(t, root.ID, del.Comment.Parent())

	got, _ := s.Get(ctx, root.ID)
	assert.Equal(t, 0, got.RepliesCount)
}

func TestInMemoryCommentStore_ReactionsToggle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c, _ := s.Create(ctx, alice, "hi", nil)

	r, err := s.Like(ctx, c.ID, bob.ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	assert.Equal(t, ActionAdded, r.Action)
	assert.Equal(t, 1, r.Comment.LikesCount)
	assert.Equal(t, []string{bob.ID}, r.Comment.Likes)

	// dislike clears the like
	r, _ = s.Dislike(ctx, c.ID, bob.ID)
	assert.Equal(t, ActionAdded, r.Action)
	assert.Equal(t, 0, r.Comment.LikesCount)
	assert.Equal(t, 1, r.Comment.DislikesCount)

	r, _ = s.Dislike(ctx, c.ID, bob.ID)
	assert.Equal(t, ActionRemoved, r.Action)
	assert.Equal(t, 0, r.Comment.DislikesCount)

	if _, err := s.Like(ctx, "missing", bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryUserStore(t *testing.T) {
	s := NewInMemoryUserStore()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, CreateUserParams{Name: "Alice", Email: "Alice@Example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, CreateUserParams{Name: "Other", Email: "alice@example.com "}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	row, err := s.UserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("by email: %v", err)
	}
	assert.Equal(t, u, row.User)
	assert.Equal(t, "h", row.PasswordHash)

	got, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	assert.Equal(t, "Alice", got.Name)

	if _, err := s.UserByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func commentIDs(list []contract.Comment) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}
