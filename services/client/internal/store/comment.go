package store

import (
	"time"

	"github.com/example/comment-sync/internal/contract"
)

// Comment is the in-memory representation of a comment.
//
// LikedBy and DislikedBy are nil when membership is not tracked, which is
// the case after a count-only push update. Liked and Disliked always hold
// the viewer's reaction as of the last server state that carried it.
type Comment struct {
	ID         string
	Content    string
	AuthorID   string
	AuthorName string
	ParentID   string

	LikedBy       map[string]struct{}
	DislikedBy    map[string]struct{}
	LikesCount    int
	DislikesCount int
	RepliesCount  int

	CreatedAt time.Time
	UpdatedAt time.Time

	Liked    bool
	Disliked bool
	// Provisional is set when the reaction counts come from a local toggle
	// instead of the server. The next authoritative copy clears it.
	Provisional bool
}

func (c Comment) IsReply() bool { return c.ParentID != "" }

func (c Comment) MembershipTracked() bool { return c.LikedBy != nil && c.DislikedBy != nil }

func (c Comment) Edited() bool { return !c.UpdatedAt.IsZero() && !c.UpdatedAt.Equal(c.CreatedAt) }

func (c Comment) clone() Comment {
	c.LikedBy = cloneSet(c.LikedBy)
	c.DislikedBy = cloneSet(c.DislikedBy)
	return c
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	if in == nil {
		return nil
	}
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

// fromWire converts a server comment. prev is the copy being replaced, if
// any; its viewer flags survive when the server copy carries no membership.
func fromWire(w contract.Comment, viewer string, prev *Comment) Comment {
	c := Comment{
		ID:            w.ID,
		Content:       w.Content,
		AuthorID:      w.User.ID,
		AuthorName:    w.User.Name,
		ParentID:      w.Parent(),
		LikesCount:    w.LikesCount,
		DislikesCount: w.DislikesCount,
		RepliesCount:  w.RepliesCount,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
	liked, disliked := toSet(w.Likes), toSet(w.Dislikes)
	// membership is trusted only when it agrees with the counts
	if (w.Likes != nil || w.Dislikes != nil) && len(liked) == w.LikesCount && len(disliked) == w.DislikesCount {
		c.LikedBy = liked
		c.DislikedBy = disliked
		c.applyViewer(viewer)
	} else if prev != nil {
		c.Liked = prev.Liked
		c.Disliked = prev.Disliked
	}
	return c
}

func (c *Comment) applyViewer(viewer string) {
	if !c.MembershipTracked() {
		return
	}
	if viewer == "" {
		c.Liked, c.Disliked = false, false
		return
	}
	_, c.Liked = c.LikedBy[viewer]
	_, c.Disliked = c.DislikedBy[viewer]
}

// ReplySet is the loaded list of replies of one parent comment.
type ReplySet struct {
	ParentID   string
	Replies    []Comment
	Loaded     bool
	Loading    bool
	Pagination contract.Pagination

	// pending holds replies confirmed before the first page landed.
	pending []contract.Comment
}

func (r *ReplySet) index(id string) int { return indexOf(r.Replies, id) }

func indexOf(list []Comment, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func (r ReplySet) clone() ReplySet {
	out := r
	out.Replies = make([]Comment, len(r.Replies))
	for i := range r.Replies {
		out.Replies[i] = r.Replies[i].clone()
	}
	return out
}

// HasMore reports whether the server holds more reply pages.
func (r ReplySet) HasMore() bool {
	return r.Loaded && r.Pagination.CurrentPage < r.Pagination.TotalPages
}
