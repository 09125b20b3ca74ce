// Package intents turns user actions into backend calls and reconciles the
// confirmed results into the comment store. Nothing is written to the store
// before the server has confirmed the action.
package intents

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
	"github.com/example/comment-sync/services/client/internal/store"
	"github.com/example/comment-sync/services/client/internal/transport"
)

// API is the subset of the backend client the dispatcher needs.
type API interface {
	Create(ctx context.Context, content string, parentID *string) (contract.Comment, error)
	Update(ctx context.Context, id, content string) (contract.Comment, error)
	Remove(ctx context.Context, id string) error
	Like(ctx context.Context, id string) (transport.Reaction, error)
	Dislike(ctx context.Context, id string) (transport.Reaction, error)
}

var _ API = (*transport.Client)(nil)

// ValidationError reports content rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// Is lets callers treat local and server-side validation failures alike.
func (e *ValidationError) Is(target error) bool { return target == transport.ErrValidation }

// Validate checks comment content and returns the trimmed text to send.
// Length is counted in characters, not bytes.
func Validate(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", &ValidationError{Field: "content", Reason: "comment cannot be empty"}
	}
	if utf8.RuneCountInString(trimmed) > contract.MaxContentLength {
		return "", &ValidationError{Field: "content", Reason: "comment cannot exceed 1000 characters"}
	}
	return trimmed, nil
}

type Dispatcher struct {
	api   API
	store *store.Store
	log   *zap.Logger
}

func NewDispatcher(api API, st *store.Store, log *zap.Logger) *Dispatcher {
	return &Dispatcher{api: api, store: st, log: logging.OrNop(log)}
}

// Create posts a new comment. Top-level comments are inserted into the feed;
// replies are only returned, since their placement belongs to the thread
// that owns them.
func (d *Dispatcher) Create(ctx context.Context, content string, parentID *string) (contract.Comment, error) {
	text, err := Validate(content)
	if err != nil {
		return contract.Comment{}, err
	}
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}
	c, err := d.api.Create(ctx, text, parentID)
	if err != nil {
		return contract.Comment{}, err
	}
	if parentID != nil && !c.IsReply() {
		// some backends omit parentComment on the create response
		c.ParentID = parentID
	}
	if !c.IsReply() {
		d.store.InsertTopLevel(c)
	}
	return c, nil
}

func (d *Dispatcher) Update(ctx context.Context, id, content string) (contract.Comment, error) {
	text, err := Validate(content)
	if err != nil {
		return contract.Comment{}, err
	}
	c, err := d.api.Update(ctx, id, text)
	if err != nil {
		return contract.Comment{}, err
	}
	d.store.Replace(c)
	return c, nil
}

func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	if err := d.api.Remove(ctx, id); err != nil {
		return err
	}
	d.store.Remove(id)
	return nil
}

func (d *Dispatcher) Like(ctx context.Context, id string) error {
	return d.react(ctx, id, store.Like)
}

func (d *Dispatcher) Dislike(ctx context.Context, id string) error {
	return d.react(ctx, id, store.Dislike)
}

func (d *Dispatcher) react(ctx context.Context, id string, r store.Reaction) error {
	call := d.api.Like
	if r == store.Dislike {
		call = d.api.Dislike
	}
	res, err := call(ctx, id)
	if err != nil {
		return err
	}
	if res.Comment != nil {
		d.store.Replace(*res.Comment)
		return nil
	}
	d.log.Warn("reaction confirmed without comment; applying local toggle",
		zap.String("comment_id", id), zap.Stringer("reaction", r))
	d.store.ToggleReaction(id, r)
	return nil
}
