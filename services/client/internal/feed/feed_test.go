package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/services/client/internal/store"
	"github.com/example/comment-sync/services/client/internal/transport"
)

type fakeFetcher struct {
	mu      sync.Mutex
	queries []transport.PageQuery
	// gate, when set, is received from before answering page == gatePage.
	gate     chan struct{}
	gatePage int
	fail     error
}

func (f *fakeFetcher) FetchPage(_ context.Context, q transport.PageQuery) (transport.Page, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gate, fail := f.gate, f.fail
	f.mu.Unlock()
	if gate != nil && q.Page == f.gatePage {
		<-gate
	}
	if fail != nil {
		return transport.Page{}, fail
	}
	id := q.Sort + "-p" + string(rune('0'+q.Page))
	return transport.Page{
		Comments:   []contract.Comment{{ID: id}},
		Pagination: contract.Pagination{CurrentPage: q.Page, TotalPages: 5, TotalComments: 50, Limit: q.Limit},
	}, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeFetcher) last() transport.PageQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type chanSource struct {
	ch   chan contract.Event
	once sync.Once
}

func newChanSource() *chanSource { return &chanSource{ch: make(chan contract.Event, 8)} }

func (s *chanSource) Events() <-chan contract.Event { return s.ch }
func (s *chanSource) Close()                        { s.once.Do(func() { close(s.ch) }) }

func feedIDs(st *store.Store) []string {
	var out []string
	for _, c := range st.Feed() {
		out = append(out, c.ID)
	}
	return out
}

func TestLoad_Defaults(t *testing.T) {
	api := &fakeFetcher{}
	st := store.New(store.Options{})
	c := New(st, api, Options{})
	assert.Equal(t, Idle, c.State())

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	q := api.last()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, contract.SortNewest, q.Sort)
	assert.Equal(t, true, q.TopLevelOnly)
	assert.Equal(t, Loaded, c.State())
	assert.Equal(t, []string{"newest-p1"}, feedIDs(st))
}

func TestSetPage_HardReplace(t *testing.T) {
	api := &fakeFetcher{}
	st := store.New(store.Options{})
	c := New(st, api, Options{})
	_ = c.Load(context.Background())

	if err := c.SetPage(context.Background(), 3); err != nil {
		t.Fatalf("set page: %v", err)
	}
	assert.Equal(t, []string{"newest-p3"}, feedIDs(st))
	assert.Equal(t, 3, st.Pagination().CurrentPage)

	if err := c.SetPage(context.Background(), 0); err == nil {
		t.Fatal("expected error for page 0")
	}
}

func TestSetSort_ResetsPageWithOneFetch(t *testing.T) {
	api := &fakeFetcher{}
	st := store.New(store.Options{})
	c := New(st, api, Options{})
	_ = c.SetPage(context.Background(), 4)
	before := api.count()

	if err := c.SetSort(context.Background(), contract.SortMostLiked); err != nil {
		t.Fatalf("set sort: %v", err)
	}
	assert.Equal(t, before+1, api.count())
	q := api.last()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, contract.SortMostLiked, q.Sort)
	assert.Equal(t, contract.SortMostLiked, st.Sort())

	if err := c.SetSort(context.Background(), "oldest"); err == nil {
		t.Fatal("expected error for unknown sort")
	}
	assert.Equal(t, before+1, api.count())
}

func TestSetLimit(t *testing.T) {
	api := &fakeFetcher{}
	c := New(store.New(store.Options{}), api, Options{})
	_ = c.SetPage(context.Background(), 2)

	if err := c.SetLimit(context.Background(), 25); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	page, limit, _ := c.Page()
	assert.Equal(t, 1, page)
	assert.Equal(t, 25, limit)
	assert.Equal(t, 25, api.last().Limit)
}

func TestFailure_KeepsLastGoodFeed(t *testing.T) {
	api := &fakeFetcher{}
	st := store.New(store.Options{})
	c := New(st, api, Options{})
	_ = c.Load(context.Background())

	api.mu.Lock()
	api.fail = &transport.Error{Op: "fetch_page", Kind: transport.ErrNetwork}
	api.mu.Unlock()

	err := c.SetPage(context.Background(), 2)
	if !errors.Is(err, transport.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	assert.Equal(t, Failed, c.State())
	assert.Equal(t, err, c.Err())
	assert.Equal(t, []string{"newest-p1"}, feedIDs(st))

	api.mu.Lock()
	api.fail = nil
	api.mu.Unlock()
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	assert.Equal(t, nil, c.Err())
	assert.Equal(t, Loaded, c.State())
}

func TestStaleResultDropped(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeFetcher{gate: gate, gatePage: 2}
	st := store.New(store.Options{})
	c := New(st, api, Options{})

	slow := make(chan error, 1)
	go func() { slow <- c.SetPage(context.Background(), 2) }()

	// wait until the slow request has been issued
	deadline := time.Now().Add(2 * time.Second)
	for api.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow request never issued")
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.SetPage(context.Background(), 3); err != nil {
		t.Fatalf("set page 3: %v", err)
	}
	close(gate)

	if err := <-slow; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected superseded, got %v", err)
	}
	assert.Equal(t, []string{"newest-p3"}, feedIDs(st))
	assert.Equal(t, Loaded, c.State())
}

func TestMount_PumpsEventsUntilUnmount(t *testing.T) {
	api := &fakeFetcher{}
	st := store.New(store.Options{})
	c := New(st, api, Options{})
	src := newChanSource()

	if err := c.Mount(context.Background(), src); err != nil {
		t.Fatalf("mount: %v", err)
	}

	applied := make(chan struct{}, 1)
	off := st.OnChange(func() {
		select {
		case applied <- struct{}{}:
		default:
		}
	})
	defer off()

	src.ch <- contract.CommentCreated{Comment: contract.Comment{ID: "pushed"}}
	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not applied")
	}
	assert.Equal(t, []string{"pushed", "newest-p1"}, feedIDs(st))

	c.Unmount()
	c.Unmount()
	if _, ok := <-src.Events(); ok {
		t.Fatal("expected source to be closed")
	}
}

func TestMount_PumpOutlivesLoadContext(t *testing.T) {
	api := &fakeFetcher{}
	st := store.New(store.Options{})
	c := New(st, api, Options{})
	src := newChanSource()

	loadCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	if err := c.Mount(loadCtx, src); err != nil {
		t.Fatalf("mount: %v", err)
	}
	cancel()
	defer c.Unmount()

	applied := make(chan struct{}, 1)
	off := st.OnChange(func() {
		select {
		case applied <- struct{}{}:
		default:
		}
	})
	defer off()

	src.ch <- contract.CommentCreated{Comment: contract.Comment{ID: "pushed"}}
	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("push event not applied after the load context ended")
	}
	assert.Equal(t, []string{"pushed", "newest-p1"}, feedIDs(st))
}
