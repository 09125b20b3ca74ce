// Package transport talks to the comment backend: typed request/response
// calls over HTTP and a long-lived push event subscription.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/platform/api"
	"github.com/example/comment-sync/internal/platform/logging"
)

const (
	DefaultBaseURL = "http://localhost:5000/api"

	maxResponseBytes = 4 << 20
	requestIDHeader  = "X-Request-Id"
)

type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
	// OnUnauthorized is called after any 401 response.
	OnUnauthorized func()
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("transport: invalid base url %q: %w", base, err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}

	return &Client{
		baseURL:        base,
		http:           hc,
		log:            logging.OrNop(opts.Logger),
		token:          strings.TrimSpace(opts.Token),
		onUnauthorized: opts.OnUnauthorized,
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// Jar returns the cookie jar holding session cookies.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) SetOnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// call describes one request. Keys lists the data fields that must be
// present and non-null for the response to be accepted.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	out    any
	keys   []string
	// optionalData tolerates a success envelope without data; out is left
	// untouched in that case.
	optionalData bool
}

func (c *Client) do(ctx context.Context, cl call) error {
	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return &Error{Op: cl.op, Kind: ErrValidation, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return &Error{Op: cl.op, Kind: ErrNetwork, Err: err}
	}
	rid := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, rid)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("op", cl.op), zap.String("request_id", rid), zap.Error(err))
		return &Error{Op: cl.op, Kind: ErrNetwork, RequestID: rid, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: cl.op, Kind: ErrNetwork, Status: resp.StatusCode, RequestID: rid, Err: err}
	}
	return c.decode(cl, resp.StatusCode, rid, raw)
}

func (c *Client) decode(cl call, status int, rid string, raw []byte) error {
	var env api.Envelope
	envErr := errors.New("empty body")
	if len(bytes.TrimSpace(raw)) > 0 {
		envErr = json.Unmarshal(raw, &env)
	}

	if status == http.StatusUnauthorized {
		c.mu.RLock()
		hook := c.onUnauthorized
		c.mu.RUnlock()
		if hook != nil {
			hook()
		}
		return &Error{Op: cl.op, Kind: ErrAuth, Status: status, Message: env.Message, RequestID: rid}
	}
	if status >= 500 {
		return &Error{Op: cl.op, Kind: ErrServer, Status: status, Message: env.Message, RequestID: rid}
	}
	if status >= 400 {
		return &Error{Op: cl.op, Kind: ErrValidation, Status: status, Message: env.Message, RequestID: rid}
	}

	if status == http.StatusNoContent && cl.out == nil {
		return nil
	}
	if envErr != nil {
		if cl.optionalData && len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		return &Error{Op: cl.op, Kind: ErrProtocol, Status: status, RequestID: rid, Err: envErr}
	}
	switch env.Status {
	case api.StatusSuccess:
	case api.StatusError:
		return &Error{Op: cl.op, Kind: ErrServer, Status: status, Message: env.Message, RequestID: rid}
	default:
		return &Error{Op: cl.op, Kind: ErrProtocol, Status: status, RequestID: rid,
			Err: fmt.Errorf("unexpected envelope status %q", env.Status)}
	}

	if cl.out == nil {
		return nil
	}
	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		if cl.optionalData {
			return nil
		}
		return &Error{Op: cl.op, Kind: ErrProtocol, Status: status, RequestID: rid, Err: errors.New("missing data")}
	}
	if len(cl.keys) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(env.Data, &fields); err != nil {
			return &Error{Op: cl.op, Kind: ErrProtocol, Status: status, RequestID: rid, Err: err}
		}
		for _, k := range cl.keys {
			v, ok := fields[k]
			if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				if cl.optionalData {
					return nil
				}
				return &Error{Op: cl.op, Kind: ErrProtocol, Status: status, RequestID: rid,
					Err: fmt.Errorf("missing data.%s", k)}
			}
		}
	}
	if err := json.Unmarshal(env.Data, cl.out); err != nil {
		return &Error{Op: cl.op, Kind: ErrProtocol, Status: status, RequestID: rid, Err: err}
	}
	return nil
}
