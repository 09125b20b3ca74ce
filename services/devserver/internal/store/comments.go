package store

import (
	"context"
	"errors"

	"github.com/example/comment-sync/internal/contract"
)

var (
	ErrNotFound       = errors.New("comment not found")
	ErrForbidden      = errors.New("comment not owned by user")
	ErrParentNotFound = errors.New("parent comment not found")
)

// Reaction actions reported with like/dislike events.
const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
)

// ListQuery selects one page of comments. ParentID selects the replies of
// that comment; an empty ParentID selects top-level comments only.
type ListQuery struct {
	ParentID string
	Sort     string
	Page     int
	Limit    int
}

// Reaction is the outcome of a like or dislike toggle.
type Reaction struct {
	Comment contract.Comment
	Action  string
}

// Deleted describes a hard delete. Removed holds the deleted comment and
// every reply that went with it.
type Deleted struct {
	Comment contract.Comment
	Removed []string
}

// CommentStore defines the contract for comment persistence.
type CommentStore interface {
	Create(ctx context.Context, author contract.User, content string, parentID *string) (contract.Comment, error)
	Get(ctx context.Context, id string) (contract.Comment, error)
	List(ctx context.Context, q ListQuery) ([]contract.Comment, int, error)
	Update(ctx context.Context, id, userID, content string) (contract.Comment, error)
	Delete(ctx context.Context, id, userID string) (Deleted, error)
	Like(ctx context.Context, id, userID string) (Reaction, error)
	Dislike(ctx context.Context, id, userID string) (Reaction, error)
}

// normalize clamps paging input the way the list endpoint documents it.
func (q ListQuery) normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if !contract.ValidSort(q.Sort) {
		q.Sort = contract.SortNewest
	}
	return q
}

func (q ListQuery) offset() int { return (q.Page - 1) * q.Limit }
