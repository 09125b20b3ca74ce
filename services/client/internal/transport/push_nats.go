package transport

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
)

// DefaultSubjectPrefix is where the backend fans comment events out on NATS.
const DefaultSubjectPrefix = "comments.events"

// SubscribeNATS consumes push events from NATS subjects under prefix.
// Reconnects are handled by the NATS connection itself (see natsconn).
func SubscribeNATS(ctx context.Context, nc *nats.Conn, prefix string, log *zap.Logger) (*Subscription, error) {
	if nc == nil {
		return nil, fmt.Errorf("transport: nil nats connection")
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	log = logging.OrNop(log).With(zap.String("prefix", prefix))

	msgs := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(prefix+".>", msgs)
	if err != nil {
		return nil, fmt.Errorf("transport: nats subscribe %s: %w", prefix, err)
	}

	s, runCtx := newSubscription(ctx, 64)
	s.connects.Add(1)
	go func() {
		defer close(s.done)
		defer close(s.events)
		defer func() { _ = sub.Unsubscribe() }()

		for {
			select {
			case <-runCtx.Done():
				return
			case m := <-msgs:
				ev, err := decodeNATS(prefix, m)
				if err != nil {
					log.Warn("push message dropped", zap.String("subject", m.Subject), zap.Error(err))
					continue
				}
				if !s.deliver(runCtx, ev) {
					return
				}
			}
		}
	}()
	return s, nil
}

func decodeNATS(prefix string, m *nats.Msg) (contract.Event, error) {
	name, ok := contract.EventNameFromSubject(prefix, m.Subject)
	if !ok {
		return nil, fmt.Errorf("%w: subject %q", contract.ErrUnknownEvent, m.Subject)
	}
	return contract.DecodeEvent(name, m.Data)
}
