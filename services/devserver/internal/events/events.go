// Package events fans comment mutations out to push subscribers.
package events

import (
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
)

// Broadcaster delivers one event to every subscriber. Delivery is
// fire-and-forget: failures are logged and never reach the caller.
type Broadcaster interface {
	Broadcast(ev contract.Event)
}

// FrameSink accepts encoded websocket frames; *hub.Hub satisfies it.
type FrameSink interface {
	Broadcast(frame []byte)
}

// Frames encodes events as websocket frames for a FrameSink.
type Frames struct {
	sink FrameSink
	log  *zap.Logger
}

func NewFrames(sink FrameSink, log *zap.Logger) *Frames {
	return &Frames{sink: sink, log: logging.OrNop(log)}
}

func (f *Frames) Broadcast(ev contract.Event) {
	frame, err := contract.EncodeFrame(ev)
	if err != nil {
		f.log.Warn("events: encode failed", zap.String("event", ev.Name()), zap.Error(err))
		return
	}
	f.sink.Broadcast(frame)
}

// Multi broadcasts to each non-nil member in order.
type Multi []Broadcaster

func (m Multi) Broadcast(ev contract.Event) {
	for _, b := range m {
		if b != nil {
			b.Broadcast(ev)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Broadcast(contract.Event) {}
