// Package feed drives the paginated, sorted top-level comment feed: it
// issues page fetches, installs their results into the store and keeps the
// store fed with push events while mounted.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
	"github.com/example/comment-sync/services/client/internal/store"
	"github.com/example/comment-sync/services/client/internal/transport"
)

type State int

const (
	Idle State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrSuperseded is returned by a fetch whose result was discarded because a
// newer fetch had been issued in the meantime.
var ErrSuperseded = errors.New("feed: request superseded")

// Fetcher loads one page of top-level comments.
type Fetcher interface {
	FetchPage(ctx context.Context, q transport.PageQuery) (transport.Page, error)
}

// Source is a stream of push events, such as a *transport.Subscription.
type Source interface {
	Events() <-chan contract.Event
	Close()
}

var (
	_ Fetcher = (*transport.Client)(nil)
	_ Source  = (*transport.Subscription)(nil)
)

type Options struct {
	Limit  int
	Sort   string
	Logger *zap.Logger
}

// Controller is safe for concurrent use. When several fetches overlap, the
// one issued last wins.
type Controller struct {
	store *store.Store
	api   Fetcher
	log   *zap.Logger

	mu    sync.Mutex
	page  int
	limit int
	sort  string
	state State
	err   error
	gen   uint64

	// applyMu orders installing results so a stale result cannot land
	// after the newer one.
	applyMu sync.Mutex

	pumpMu   sync.Mutex
	src      Source
	stopPump context.CancelFunc
	pumpDone chan struct{}
}

func New(st *store.Store, api Fetcher, opts Options) *Controller {
	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	sort := opts.Sort
	if !contract.ValidSort(sort) {
		sort = contract.SortNewest
	}
	return &Controller{
		store: st,
		api:   api,
		log:   logging.OrNop(opts.Logger),
		page:  1,
		limit: limit,
		sort:  sort,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed fetch, or nil once a fetch
// succeeded.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Page returns the requested page, sort and limit.
func (c *Controller) Page() (page, limit int, sort string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page, c.limit, c.sort
}

// Load fetches the currently requested page.
func (c *Controller) Load(ctx context.Context) error {
	return c.fetch(ctx, func() {})
}

// SetPage requests page n. Pages are 1-indexed and not clamped to
// totalPages.
func (c *Controller) SetPage(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("feed: page %d out of range", n)
	}
	return c.fetch(ctx, func() { c.page = n })
}

// SetSort changes the sort key and goes back to page 1.
func (c *Controller) SetSort(ctx context.Context, sort string) error {
	if !contract.ValidSort(sort) {
		return fmt.Errorf("feed: unknown sort %q", sort)
	}
	return c.fetch(ctx, func() {
		c.sort = sort
		c.page = 1
	})
}

// SetLimit changes the page size and goes back to page 1.
func (c *Controller) SetLimit(ctx context.Context, limit int) error {
	if limit < 1 {
		return fmt.Errorf("feed: limit %d out of range", limit)
	}
	return c.fetch(ctx, func() {
		c.limit = limit
		c.page = 1
	})
}

func (c *Controller) fetch(ctx context.Context, change func()) error {
	c.mu.Lock()
	change()
	c.gen++
	gen := c.gen
	q := transport.PageQuery{Page: c.page, Limit: c.limit, Sort: c.sort, TopLevelOnly: true}
	c.state = Loading
	c.mu.Unlock()

	res, err := c.api.FetchPage(ctx, q)

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Debug("stale feed result dropped", zap.Int("page", q.Page), zap.String("sort", q.Sort))
		return ErrSuperseded
	}
	if err != nil {
		c.state = Failed
		c.err = err
		c.mu.Unlock()
		c.log.Warn("feed fetch failed", zap.Int("page", q.Page), zap.String("sort", q.Sort), zap.Error(err))
		return err
	}
	c.state = Loaded
	c.err = nil
	c.mu.Unlock()

	c.store.ReplaceFeed(res.Comments, res.Pagination, q.Sort)
	return nil
}

// Mount performs the first load and starts applying events from src to the
// store. ctx bounds the first load only: the pump runs until Unmount or
// until src closes its channel. The pump keeps running when the load fails,
// so a later SetPage can recover without resubscribing. Mount on a mounted
// controller replaces the previous source.
func (c *Controller) Mount(ctx context.Context, src Source) error {
	c.Unmount()

	pumpCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.pumpMu.Lock()
	c.src = src
	c.stopPump = stop
	c.pumpDone = done
	c.pumpMu.Unlock()

	go c.pump(pumpCtx, src, done)
	return c.Load(ctx)
}

func (c *Controller) pump(ctx context.Context, src Source, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			c.store.Apply(ev)
		}
	}
}

// Unmount closes the event source and waits for the pump to exit. It is a
// no-op when nothing is mounted.
func (c *Controller) Unmount() {
	c.pumpMu.Lock()
	src, stop, done := c.src, c.stopPump, c.pumpDone
	c.src, c.stopPump, c.pumpDone = nil, nil, nil
	c.pumpMu.Unlock()

	if src == nil {
		return
	}
	stop()
	src.Close()
	<-done
}
