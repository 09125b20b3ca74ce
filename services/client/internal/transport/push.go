package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
)

// WSOptions configures a websocket push subscription. Zero values fall
// back to the defaults below.
type WSOptions struct {
	URL    string
	Token  string
	Jar    http.CookieJar
	Header http.Header

	ReconnectWait    time.Duration // default 2s
	HandshakeTimeout time.Duration // default 5s
	PingInterval     time.Duration // default 25s
	ReadTimeout      time.Duration // default 60s, extended by every pong
	Buffer           int           // default 64

	Dialer *websocket.Dialer
	Logger *zap.Logger
}

func (o *WSOptions) defaults() {
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.Buffer <= 0 {
		o.Buffer = 64
	}
	o.Logger = logging.OrNop(o.Logger)
}

// Subscription is a live push event stream. Events are delivered at most
// once; events missed while disconnected are not replayed.
type Subscription struct {
	events chan contract.Event
	cancel context.CancelFunc
	done   chan struct{}

	connects atomic.Int64
	once     sync.Once
}

func newSubscription(ctx context.Context, buffer int) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Subscription{
		events: make(chan contract.Event, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

// Events is closed after the subscription stops.
func (s *Subscription) Events() <-chan contract.Event { return s.events }

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Connects reports how many connections were established so far.
func (s *Subscription) Connects() int64 { return s.connects.Load() }

// Close stops the subscription and waits for its goroutine to exit.
// It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

func (s *Subscription) deliver(ctx context.Context, ev contract.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case s.events <- ev:
		return true
	}
}

// Subscribe opens a websocket push subscription carrying this client's
// session cookies and bearer token.
func (c *Client) Subscribe(ctx context.Context, opts WSOptions) (*Subscription, error) {
	if opts.Jar == nil {
		opts.Jar = c.Jar()
	}
	if opts.Token == "" {
		opts.Token = c.Token()
	}
	if opts.Logger == nil {
		opts.Logger = c.log
	}
	if opts.URL == "" {
		opts.URL = WebsocketURL(c.baseURL)
	}
	return DialEvents(ctx, opts)
}

// WebsocketURL derives the push endpoint from an API base url:
// http://host:5000/api -> ws://host:5000/ws.
func WebsocketURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String()
}

// DialEvents starts a websocket subscription. It returns immediately;
// connecting and reconnecting happen in the background until Close.
func DialEvents(ctx context.Context, opts WSOptions) (*Subscription, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("transport: invalid websocket url %q", opts.URL)
	}
	opts.defaults()

	s, runCtx := newSubscription(ctx, opts.Buffer)
	go s.runWebsocket(runCtx, opts)
	return s, nil
}

func (s *Subscription) runWebsocket(ctx context.Context, opts WSOptions) {
	defer close(s.done)
	defer close(s.events)

	log := opts.Logger.With(zap.String("url", opts.URL))
	for {
		conn, err := dialWebsocket(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("push connect failed", zap.Error(err), zap.Duration("retry_in", opts.ReconnectWait))
		} else {
			n := s.connects.Add(1)
			log.Info("push connected", zap.Int64("connects", n))
			err = s.readWebsocket(ctx, conn, opts, log)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			log.Warn("push disconnected", zap.Error(err), zap.Duration("retry_in", opts.ReconnectWait))
		}

		t := time.NewTimer(opts.ReconnectWait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func dialWebsocket(ctx context.Context, opts WSOptions) (*websocket.Conn, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}
	if dialer.Jar == nil && opts.Jar != nil {
		d := *dialer
		d.Jar = opts.Jar
		dialer = &d
	}

	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = v
	}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &Error{Op: "subscribe", Kind: ErrAuth, Status: resp.StatusCode}
		}
		return nil, &Error{Op: "subscribe", Kind: ErrNetwork, Err: err}
	}
	return conn, nil
}

func (s *Subscription) readWebsocket(ctx context.Context, conn *websocket.Conn, opts WSOptions, log *zap.Logger) error {
	stop := make(chan struct{})
	defer close(stop)

	_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(opts.HandshakeTimeout)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("closed by server")
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))

		// a single message may batch several newline-separated frames
		for _, frame := range bytes.Split(message, []byte{'\n'}) {
			if len(bytes.TrimSpace(frame)) == 0 {
				continue
			}
			ev, err := contract.DecodeFrame(frame)
			if err != nil {
				log.Warn("push frame dropped", zap.Error(err), zap.String("frame", truncate(string(frame), 200)))
				continue
			}
			if !s.deliver(ctx, ev) {
				return ctx.Err()
			}
		}
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
