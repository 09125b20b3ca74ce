// Package contract holds the wire types shared by the comment client and the
// reference backend: comments, users, pagination and push events.
package contract

import (
	"strings"
	"time"
)

// MaxContentLength is the upper bound on comment content, in characters.
const MaxContentLength = 1000

// Sort keys accepted by the feed endpoint.
const (
	SortNewest       = "newest"
	SortMostLiked    = "mostLiked"
	SortMostDisliked = "mostDisliked"
)

// ValidSort reports whether s is one of the known sort keys.
func ValidSort(s string) bool {
	switch s {
	case SortNewest, SortMostLiked, SortMostDisliked:
		return true
	}
	return false
}

type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Comment is a comment as the backend serializes it.
type Comment struct {
	ID            string    `json:"_id"`
	Content       string    `json:"content"`
	User          User      `json:"user"`
	ParentID      *string   `json:"parentComment"`
	Likes         []string  `json:"likes"`
	Dislikes      []string  `json:"dislikes"`
	LikesCount    int       `json:"likesCount"`
	DislikesCount int       `json:"dislikesCount"`
	RepliesCount  int       `json:"repliesCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsReply reports whether the comment has a parent.
func (c Comment) IsReply() bool {
	return c.ParentID != nil && strings.TrimSpace(*c.ParentID) != ""
}

// Parent returns the parent id or "" for top-level comments.
func (c Comment) Parent() string {
	if !c.IsReply() {
		return ""
	}
	return *c.ParentID
}

type Pagination struct {
	CurrentPage   int `json:"currentPage"`
	TotalPages    int `json:"totalPages"`
	TotalComments int `json:"totalComments"`
	Limit         int `json:"limit"`
}

// PageData is the data block of the list endpoints.
type PageData struct {
	Comments   []Comment   `json:"comments"`
	Pagination *Pagination `json:"pagination"`
}

// CommentData is the data block of the single-comment endpoints.
type CommentData struct {
	Comment *Comment `json:"comment"`
}

// UserData is the data block of the auth endpoints.
type UserData struct {
	User  *User  `json:"user"`
	Token string `json:"token,omitempty"`
}

type CreateCommentRequest struct {
	Content       string  `json:"content"`
	ParentComment *string `json:"parentComment,omitempty"`
}

type UpdateCommentRequest struct {
	Content string `json:"content"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
