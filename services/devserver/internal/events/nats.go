package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
)

// DefaultSubjectPrefix must match the prefix clients subscribe under.
const DefaultSubjectPrefix = "comments.events"

// NATSPublisher publishes each event's payload on <prefix>.comment.<action>.
// A nil pointer or a nil connection is a safe no-op.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    *zap.Logger
}

func NewNATSPublisher(nc *nats.Conn, prefix string, log *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix, log: logging.OrNop(log)}
}

func (p *NATSPublisher) Broadcast(ev contract.Event) {
	if p == nil || p.nc == nil {
		return
	}
	subject := contract.Subject(p.prefix, ev.Name())
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", ev.Name()), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
