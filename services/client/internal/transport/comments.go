package transport

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/example/comment-sync/internal/contract"
)

// PageQuery selects one page of comments. ParentID wins over TopLevelOnly;
// with neither set the parentComment parameter is omitted.
type PageQuery struct {
	Page         int
	Limit        int
	Sort         string
	TopLevelOnly bool
	ParentID     string
}

func (q PageQuery) values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	switch {
	case q.ParentID != "":
		v.Set("parentComment", q.ParentID)
	case q.TopLevelOnly:
		v.Set("parentComment", "null")
	}
	return v
}

type Page struct {
	Comments   []contract.Comment
	Pagination contract.Pagination
}

// Reaction is the result of a like or dislike. Comment is nil when the
// server confirmed the reaction without returning the updated comment.
type Reaction struct {
	Comment *contract.Comment
}

func (c *Client) FetchPage(ctx context.Context, q PageQuery) (Page, error) {
	var out contract.PageData
	err := c.do(ctx, call{
		op: "fetch_page", method: http.MethodGet, path: "/comments",
		query: q.values(), out: &out, keys: []string{"comments", "pagination"},
	})
	if err != nil {
		return Page{}, err
	}
	return Page{Comments: out.Comments, Pagination: *out.Pagination}, nil
}

func (c *Client) FetchReplies(ctx context.Context, parentID string, page, limit int) (Page, error) {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(limit))

	var out contract.PageData
	err := c.do(ctx, call{
		op: "fetch_replies", method: http.MethodGet, path: "/comments/" + url.PathEscape(parentID) + "/replies",
		query: v, out: &out, keys: []string{"comments", "pagination"},
	})
	if err != nil {
		return Page{}, err
	}
	return Page{Comments: out.Comments, Pagination: *out.Pagination}, nil
}

func (c *Client) Get(ctx context.Context, id string) (contract.Comment, error) {
	return c.commentCall(ctx, call{op: "get", method: http.MethodGet, path: "/comments/" + url.PathEscape(id)})
}

func (c *Client) Create(ctx context.Context, content string, parentID *string) (contract.Comment, error) {
	return c.commentCall(ctx, call{
		op: "create", method: http.MethodPost, path: "/comments",
		body: contract.CreateCommentRequest{Content: content, ParentComment: parentID},
	})
}

func (c *Client) Update(ctx context.Context, id, content string) (contract.Comment, error) {
	return c.commentCall(ctx, call{
		op: "update", method: http.MethodPut, path: "/comments/" + url.PathEscape(id),
		body: contract.UpdateCommentRequest{Content: content},
	})
}

func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, call{op: "remove", method: http.MethodDelete, path: "/comments/" + url.PathEscape(id), optionalData: true})
}

func (c *Client) Like(ctx context.Context, id string) (Reaction, error) {
	return c.react(ctx, "like", id)
}

func (c *Client) Dislike(ctx context.Context, id string) (Reaction, error) {
	return c.react(ctx, "dislike", id)
}

func (c *Client) react(ctx context.Context, action, id string) (Reaction, error) {
	var out contract.CommentData
	err := c.do(ctx, call{
		op: action, method: http.MethodPost, path: "/comments/" + url.PathEscape(id) + "/" + action,
		out: &out, keys: []string{"comment"}, optionalData: true,
	})
	if err != nil {
		return Reaction{}, err
	}
	return Reaction{Comment: out.Comment}, nil
}

func (c *Client) commentCall(ctx context.Context, cl call) (contract.Comment, error) {
	var out contract.CommentData
	cl.out = &out
	cl.keys = []string{"comment"}
	if err := c.do(ctx, cl); err != nil {
		return contract.Comment{}, err
	}
	return *out.Comment, nil
}
