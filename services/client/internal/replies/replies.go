// Package replies controls the reply thread of one comment: expanding and
// collapsing it, paging through replies and acting on them.
package replies

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
	"github.com/example/comment-sync/services/client/internal/intents"
	"github.com/example/comment-sync/services/client/internal/store"
	"github.com/example/comment-sync/services/client/internal/transport"
)

// PageSize is the number of replies fetched per page.
const PageSize = 10

var (
	ErrClosed = errors.New("replies: controller closed")
	// ErrSuperseded is returned when the thread was collapsed, re-expanded
	// or closed while a fetch was in flight; the result was discarded.
	ErrSuperseded = errors.New("replies: request superseded")
)

type State int

const (
	Collapsed State = iota
	Loading
	Expanded
)

func (s State) String() string {
	switch s {
	case Collapsed:
		return "collapsed"
	case Loading:
		return "loading"
	case Expanded:
		return "expanded"
	}
	return "unknown"
}

// Fetcher loads one page of replies of a parent comment.
type Fetcher interface {
	FetchReplies(ctx context.Context, parentID string, page, limit int) (transport.Page, error)
}

var _ Fetcher = (*transport.Client)(nil)

type Controller struct {
	parentID string
	store    *store.Store
	api      Fetcher
	actions  *intents.Dispatcher
	base     *zap.Logger
	log      *zap.Logger

	// applyMu serializes installing results into the store with collapse,
	// so a late page cannot land in a set opened by a newer expand.
	applyMu sync.Mutex

	mu          sync.Mutex
	state       State
	gen         uint64
	closed      bool
	loadingMore bool
	children    map[string]*Controller
}

func New(parentID string, st *store.Store, api Fetcher, actions *intents.Dispatcher, log *zap.Logger) *Controller {
	log = logging.OrNop(log)
	return &Controller{
		parentID: parentID,
		store:    st,
		api:      api,
		actions:  actions,
		base:     log,
		log:      log.With(zap.String("parent_id", parentID)),
		children: make(map[string]*Controller),
	}
}

func (c *Controller) ParentID() string { return c.parentID }

// State reports Collapsed once the store has dropped the reply set, for
// instance when an ancestor was deleted, even if c never collapsed itself.
func (c *Controller) State() State {
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()
	if s != Collapsed && !c.held() {
		return Collapsed
	}
	return s
}

func (c *Controller) held() bool {
	_, ok := c.store.Replies(c.parentID)
	return ok
}

// Replies returns the loaded replies; ok is false while collapsed.
func (c *Controller) Replies() (store.ReplySet, bool) {
	return c.store.Replies(c.parentID)
}

// Toggle expands a collapsed thread, fetching its first page, or collapses
// an expanded or loading one.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	state, closed := c.state, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if state == Collapsed {
		return c.expand(ctx)
	}
	if !c.held() {
		// the store dropped the set; reset children and in-flight fetches
		c.log.Debug("reply set dropped by store, expanding again")
		c.collapse()
		return c.expand(ctx)
	}
	c.collapse()
	return nil
}

func (c *Controller) expand(ctx context.Context) error {
	c.applyMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.applyMu.Unlock()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.store.BeginReplies(c.parentID)
	c.setState(Loading)
	c.applyMu.Unlock()

	res, err := c.api.FetchReplies(ctx, c.parentID, 1, PageSize)

	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if !c.current(gen) {
		return ErrSuperseded
	}
	if err != nil {
		c.setState(Collapsed)
		c.store.FailReplies(c.parentID)
		c.log.Warn("reply fetch failed", zap.Error(err))
		return err
	}
	c.setState(Expanded)
	c.store.LoadReplies(c.parentID, res.Comments, res.Pagination, false)
	return nil
}

func (c *Controller) collapse() {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	c.mu.Lock()
	c.gen++
	c.state = Collapsed
	children := c.takeChildren()
	c.mu.Unlock()

	for _, ch := range children {
		ch.Close()
	}
	c.store.CollapseReplies(c.parentID)
}

// LoadMore fetches the next page of replies and appends it. It is a no-op
// unless the thread is expanded and the server holds more pages.
func (c *Controller) LoadMore(ctx context.Context) error {
	set, ok := c.store.Replies(c.parentID)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Expanded || !ok || !set.HasMore() || c.loadingMore {
		c.mu.Unlock()
		return nil
	}
	c.loadingMore = true
	gen := c.gen
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loadingMore = false
		c.mu.Unlock()
	}()

	res, err := c.api.FetchReplies(ctx, c.parentID, set.Pagination.CurrentPage+1, PageSize)

	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if !c.current(gen) {
		return ErrSuperseded
	}
	if err != nil {
		c.log.Warn("reply page fetch failed", zap.Int("page", set.Pagination.CurrentPage+1), zap.Error(err))
		return err
	}
	c.store.LoadReplies(c.parentID, res.Comments, res.Pagination, true)
	return nil
}

// Reply posts a reply to the parent. An expanded thread shows it right
// away and a loading one merges it into the page being fetched; a
// collapsed one is expanded, which fetches it from the server.
func (c *Controller) Reply(ctx context.Context, content string) (contract.Comment, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return contract.Comment{}, ErrClosed
	}

	parent := c.parentID
	reply, err := c.actions.Create(ctx, content, &parent)
	if err != nil {
		return contract.Comment{}, err
	}

	switch c.State() {
	case Expanded, Loading:
		c.store.InsertReply(reply)
	case Collapsed:
		if err := c.expand(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			// the reply exists; only the refresh failed
			c.log.Warn("reply posted but thread refresh failed", zap.String("comment_id", reply.ID), zap.Error(err))
		}
	}
	return reply, nil
}

func (c *Controller) Edit(ctx context.Context, id, content string) (contract.Comment, error) {
	return c.actions.Update(ctx, id, content)
}

func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.actions.Delete(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	ch := c.children[id]
	delete(c.children, id)
	c.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
	return nil
}

func (c *Controller) Like(ctx context.Context, id string) error {
	return c.actions.Like(ctx, id)
}

func (c *Controller) Dislike(ctx context.Context, id string) error {
	return c.actions.Dislike(ctx, id)
}

// Child returns the controller of the thread below replyID, creating it on
// first use. Closing or collapsing c closes its children.
func (c *Controller) Child(replyID string) *Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.children[replyID]; ok {
		return ch
	}
	ch := New(replyID, c.store, c.api, c.actions, c.base)
	if c.closed {
		ch.closed = true
	}
	c.children[replyID] = ch
	return ch
}

// Close discards the thread and every nested one. Completions that arrive
// afterwards are dropped.
func (c *Controller) Close() {
	c.applyMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.applyMu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.state = Collapsed
	children := c.takeChildren()
	c.mu.Unlock()

	for _, ch := range children {
		ch.Close()
	}
	c.store.CollapseReplies(c.parentID)
	c.applyMu.Unlock()
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.gen
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// takeChildren empties the child map. Caller holds mu.
func (c *Controller) takeChildren() []*Controller {
	out := make([]*Controller, 0, len(c.children))
	for id, ch := range c.children {
		out = append(out, ch)
		delete(c.children, id)
	}
	return out
}
