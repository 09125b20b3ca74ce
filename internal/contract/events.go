package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Push event names as emitted on the realtime channel.
const (
	EventCreated  = "comment:created"
	EventUpdated  = "comment:updated"
	EventDeleted  = "comment:deleted"
	EventLiked    = "comment:liked"
	EventDisliked = "comment:disliked"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMalformedEvent = errors.New("malformed event")
)

// Event is one push notification. Target is the id of the affected comment.
type Event interface {
	Name() string
	Target() string
}

type CommentCreated struct {
	Comment  Comment `json:"comment"`
	ParentID *string `json:"parentComment"`
}

type CommentUpdated struct {
	Comment Comment `json:"comment"`
}

type CommentDeleted struct {
	CommentID string  `json:"commentId"`
	ParentID  *string `json:"parentComment"`
}

// CommentLiked carries counts only; the liker identity is not part of it.
type CommentLiked struct {
	CommentID     string `json:"commentId"`
	LikesCount    int    `json:"likesCount"`
	DislikesCount int    `json:"dislikesCount"`
	Action        string `json:"action,omitempty"`
}

type CommentDisliked struct {
	CommentID     string `json:"commentId"`
	LikesCount    int    `json:"likesCount"`
	DislikesCount int    `json:"dislikesCount"`
	Action        string `json:"action,omitempty"`
}

func (CommentCreated) Name() string  { return EventCreated }
func (CommentUpdated) Name() string  { return EventUpdated }
func (CommentDeleted) Name() string  { return EventDeleted }
func (CommentLiked) Name() string    { return EventLiked }
func (CommentDisliked) Name() string { return EventDisliked }

func (e CommentCreated) Target() string  { return e.Comment.ID }
func (e CommentUpdated) Target() string  { return e.Comment.ID }
func (e CommentDeleted) Target() string  { return e.CommentID }
func (e CommentLiked) Target() string    { return e.CommentID }
func (e CommentDisliked) Target() string { return e.CommentID }

// Parent returns the parent id carried by the event, falling back to the
// comment's own parentComment field.
func (e CommentCreated) Parent() string {
	if e.ParentID != nil && *e.ParentID != "" {
		return *e.ParentID
	}
	return e.Comment.Parent()
}

// Frame is the websocket envelope of one event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeFrame marshals ev into a websocket frame.
func EncodeFrame(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: ev.Name(), Data: data})
}

// DecodeFrame parses a websocket frame into a typed event.
func DecodeFrame(b []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return DecodeEvent(f.Event, f.Data)
}

type countsPayload struct {
	CommentID     string `json:"commentId"`
	LikesCount    *int   `json:"likesCount"`
	DislikesCount *int   `json:"dislikesCount"`
	Action        string `json:"action"`
}

// DecodeEvent decodes the payload of the named event. It fails on unknown
// names and on payloads missing the fields the event requires.
func DecodeEvent(name string, data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty payload", ErrMalformedEvent, name)
	}
	switch name {
	case EventCreated:
		var ev CommentCreated
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, name, err)
		}
		if ev.Comment.ID == "" {
			return nil, fmt.Errorf("%w: %s: missing comment", ErrMalformedEvent, name)
		}
		return ev, nil
	case EventUpdated:
		var ev CommentUpdated
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, name, err)
		}
		if ev.Comment.ID == "" {
			return nil, fmt.Errorf("%w: %s: missing comment", ErrMalformedEvent, name)
		}
		return ev, nil
	case EventDeleted:
		var ev CommentDeleted
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, name, err)
		}
		if ev.CommentID == "" {
			return nil, fmt.Errorf("%w: %s: missing commentId", ErrMalformedEvent, name)
		}
		return ev, nil
	case EventLiked, EventDisliked:
		var p countsPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, name, err)
		}
		if p.CommentID == "" || p.LikesCount == nil || p.DislikesCount == nil {
			return nil, fmt.Errorf("%w: %s: missing commentId or counts", ErrMalformedEvent, name)
		}
		if name == EventLiked {
			return CommentLiked{CommentID: p.CommentID, LikesCount: *p.LikesCount, DislikesCount: *p.DislikesCount, Action: p.Action}, nil
		}
		return CommentDisliked{CommentID: p.CommentID, LikesCount: *p.LikesCount, DislikesCount: *p.DislikesCount, Action: p.Action}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// Subject maps an event name onto a NATS subject under prefix,
// e.g. comment:liked -> <prefix>.comment.liked.
func Subject(prefix, name string) string {
	return strings.TrimSuffix(prefix, ".") + "." + strings.ReplaceAll(name, ":", ".")
}

// EventNameFromSubject is the inverse of Subject.
func EventNameFromSubject(prefix, subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, strings.TrimSuffix(prefix, ".")+".")
	if !ok {
		return "", false
	}
	i := strings.LastIndex(rest, ".")
	if i < 0 {
		return "", false
	}
	return rest[:i] + ":" + rest[i+1:], true
}
