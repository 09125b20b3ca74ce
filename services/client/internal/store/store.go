// Package store is the normalized in-memory comment store. It holds the
// top-level feed and the reply sets of expanded threads, and reconciles
// server-confirmed results and push events into them.
//
// Every mutation is keyed by comment id and idempotent, so the end state
// does not depend on whether a change arrives through a confirmation, a
// push event, or both, nor on their order.
package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
)

const DefaultLimit = 10

type Options struct {
	// Viewer is the id of the signed-in user, used to derive Liked/Disliked.
	Viewer string
	Limit  int
	Logger *zap.Logger
}

// Store is safe for concurrent use. Each method applies one mutation
// atomically; listeners run after the lock is released.
type Store struct {
	mu         sync.RWMutex
	viewer     string
	feed       []Comment
	pagination contract.Pagination
	sort       string
	replies    map[string]*ReplySet
	// seeded holds comments tracked outside the feed and reply sets.
	seeded     map[string]*Comment

	lmu       sync.Mutex
	listeners map[int]func()
	nextID    int

	log *zap.Logger
}

func New(opts Options) *Store {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		viewer:     opts.Viewer,
		pagination: contract.Pagination{CurrentPage: 1, TotalPages: 1, Limit: limit},
		sort:       contract.SortNewest,
		replies:    make(map[string]*ReplySet),
		seeded:     make(map[string]*Comment),
		listeners:  make(map[int]func()),
		log:        logging.OrNop(opts.Logger),
	}
}

// OnChange registers fn to run after every mutation that changed state.
// The returned func unregisters it.
func (s *Store) OnChange(fn func()) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Store) notify() {
	s.lmu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// mutate runs fn under the write lock and notifies listeners when fn
// reports a change.
func (s *Store) mutate(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

// SetViewer changes the signed-in user and recomputes the viewer flags of
// every record whose membership is tracked.
func (s *Store) SetViewer(viewer string) {
	s.mutate(func() bool {
		if s.viewer == viewer {
			return false
		}
		s.viewer = viewer
		s.eachCopy(func(c *Comment) { c.applyViewer(viewer) })
		return true
	})
}

func (s *Store) Viewer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer
}

// Feed returns a copy of the top-level feed in display order.
func (s *Store) Feed() []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Comment, len(s.feed))
	for i := range s.feed {
		out[i] = s.feed[i].clone()
	}
	return out
}

func (s *Store) Pagination() contract.Pagination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pagination
}

func (s *Store) Sort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sort
}

// Get finds a comment in the feed or in any loaded reply set.
func (s *Store) Get(id string) (Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.feedIndex(id); i >= 0 {
		return s.feed[i].clone(), true
	}
	for _, set := range s.replies {
		if i := set.index(id); i >= 0 {
			return set.Replies[i].clone(), true
		}
	}
	if c, ok := s.seeded[id]; ok {
		return c.clone(), true
	}
	return Comment{}, false
}

// Seed tracks a single comment that is neither in the feed nor in a loaded
// reply set, such as one fetched by id, so that confirmations and push
// events reach it. Feed pagination and reply totals are not touched.
func (s *Store) Seed(c contract.Comment) {
	if c.ID == "" {
		return
	}
	s.mutate(func() bool {
		cur := fromWire(c, s.viewer, s.seeded[c.ID])
		s.seeded[c.ID] = &cur
		return true
	})
}

// ReplaceFeed installs a freshly fetched page. It is a hard replace: no
// entry of the previous page survives. Replies in the input are dropped.
func (s *Store) ReplaceFeed(comments []contract.Comment, p contract.Pagination, sort string) {
	s.mutate(func() bool {
		prev := make(map[string]Comment, len(s.feed))
		for _, c := range s.feed {
			prev[c.ID] = c
		}
		feed := make([]Comment, 0, len(comments))
		seen := make(map[string]struct{}, len(comments))
		for _, w := range comments {
			if w.IsReply() {
				s.log.Warn("reply dropped from feed page", zap.String("comment_id", w.ID), zap.String("parent_id", w.Parent()))
				continue
			}
			if _, dup := seen[w.ID]; dup {
				continue
			}
			seen[w.ID] = struct{}{}
			var old *Comment
			if c, ok := prev[w.ID]; ok {
				old = &c
			}
			feed = append(feed, fromWire(w, s.viewer, old))
		}
		s.feed = feed
		s.pagination = p
		if sort != "" {
			s.sort = sort
		}
		return true
	})
}

// InsertTopLevel prepends c to the feed unless a comment with the same id
// is already there, and counts it in totalComments. It reports whether c
// was inserted. Replies are refused.
func (s *Store) InsertTopLevel(c contract.Comment) bool {
	if c.IsReply() || c.ID == "" {
		return false
	}
	return s.mutate(func() bool {
		if s.feedIndex(c.ID) >= 0 {
			return false
		}
		s.feed = append([]Comment{fromWire(c, s.viewer, nil)}, s.feed...)
		s.pagination.TotalComments++
		s.recomputePages()
		return true
	})
}

// Replace swaps in the server copy of a comment wherever it is held,
// keeping its position. Unknown ids are ignored.
func (s *Store) Replace(c contract.Comment) bool {
	if c.ID == "" {
		return false
	}
	return s.mutate(func() bool {
		found := false
		s.eachCopyOf(c.ID, func(cur *Comment) {
			*cur = fromWire(c, s.viewer, cur)
			found = true
		})
		return found
	})
}

// Remove deletes a comment from the feed or from its reply set. Removing
// an id that is not held is a no-op, so counts move at most once.
func (s *Store) Remove(id string) bool {
	return s.mutate(func() bool {
		removed := false
		if i := s.feedIndex(id); i >= 0 {
			s.feed = append(s.feed[:i], s.feed[i+1:]...)
			if s.pagination.TotalComments > 0 {
				s.pagination.TotalComments--
			}
			s.recomputePages()
			removed = true
		}
		for parent, set := range s.replies {
			i := set.index(id)
			if i < 0 {
				continue
			}
			set.Replies = append(set.Replies[:i], set.Replies[i+1:]...)
			if set.Pagination.TotalComments > 0 {
				set.Pagination.TotalComments--
			}
			s.eachCopyOf(parent, func(p *Comment) {
				if p.RepliesCount > 0 {
					p.RepliesCount--
				}
			})
			removed = true
		}
		if _, ok := s.seeded[id]; ok {
			delete(s.seeded, id)
			removed = true
		}
		s.dropReplies(id)
		return removed
	})
}

// dropReplies discards the reply set of id and of its loaded descendants.
func (s *Store) dropReplies(id string) {
	set, ok := s.replies[id]
	if !ok {
		return
	}
	delete(s.replies, id)
	for _, r := range set.Replies {
		s.dropReplies(r.ID)
	}
}

// MergeCounts applies a count-only update. Membership becomes untracked
// since counts alone cannot say who reacted; the viewer flags are kept.
// The feed is not re-sorted.
func (s *Store) MergeCounts(id string, likes, dislikes int) bool {
	return s.mutate(func() bool {
		found := false
		s.eachCopyOf(id, func(c *Comment) {
			c.LikesCount = likes
			c.DislikesCount = dislikes
			c.LikedBy = nil
			c.DislikedBy = nil
			c.Provisional = false
			found = true
		})
		return found
	})
}

type Reaction int

const (
	Like Reaction = iota + 1
	Dislike
)

func (r Reaction) String() string {
	switch r {
	case Like:
		return "like"
	case Dislike:
		return "dislike"
	}
	return "unknown"
}

// ToggleReaction flips the viewer's reaction locally. It exists for the
// degraded case where the server confirmed a reaction without returning
// counts; the result is marked Provisional.
func (s *Store) ToggleReaction(id string, r Reaction) bool {
	return s.mutate(func() bool {
		found := false
		s.eachCopyOf(id, func(c *Comment) {
			toggle(c, r, s.viewer)
			found = true
		})
		return found
	})
}

func toggle(c *Comment, r Reaction, viewer string) {
	switch r {
	case Like:
		if c.Liked {
			c.Liked = false
			c.LikesCount = max(c.LikesCount-1, 0)
		} else {
			c.Liked = true
			c.LikesCount++
			if c.Disliked {
				c.Disliked = false
				c.DislikesCount = max(c.DislikesCount-1, 0)
			}
		}
	case Dislike:
		if c.Disliked {
			c.Disliked = false
			c.DislikesCount = max(c.DislikesCount-1, 0)
		} else {
			c.Disliked = true
			c.DislikesCount++
			if c.Liked {
				c.Liked = false
				c.LikesCount = max(c.LikesCount-1, 0)
			}
		}
	}
	if c.MembershipTracked() && viewer != "" {
		delete(c.LikedBy, viewer)
		delete(c.DislikedBy, viewer)
		if c.Liked {
			c.LikedBy[viewer] = struct{}{}
		}
		if c.Disliked {
			c.DislikedBy[viewer] = struct{}{}
		}
	}
	c.Provisional = true
}

func (s *Store) feedIndex(id string) int { return indexOf(s.feed, id) }

// eachCopyOf calls fn for every held copy of id. Caller holds the lock.
func (s *Store) eachCopyOf(id string, fn func(*Comment)) {
	if i := s.feedIndex(id); i >= 0 {
		fn(&s.feed[i])
	}
	for _, set := range s.replies {
		if i := set.index(id); i >= 0 {
			fn(&set.Replies[i])
		}
	}
	if c, ok := s.seeded[id]; ok {
		fn(c)
	}
}

// eachCopy calls fn for every held comment. Caller holds the lock.
func (s *Store) eachCopy(fn func(*Comment)) {
	for i := range s.feed {
		fn(&s.feed[i])
	}
	for _, set := range s.replies {
		for i := range set.Replies {
			fn(&set.Replies[i])
		}
	}
	for _, c := range s.seeded {
		fn(c)
	}
}

func (s *Store) recomputePages() {
	s.pagination.TotalPages = pagesFor(s.pagination.TotalComments, s.pagination.Limit)
}

func pagesFor(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
