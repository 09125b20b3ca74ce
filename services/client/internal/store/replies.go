package store

import (
	"github.com/example/comment-sync/internal/contract"
)

// Replies returns a copy of the reply set of parentID.
func (s *Store) Replies(parentID string) (ReplySet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.replies[parentID]
	if !ok {
		return ReplySet{}, false
	}
	return set.clone(), true
}

// BeginReplies creates an empty, loading reply set for parentID. An
// existing set is kept and only flagged as loading.
func (s *Store) BeginReplies(parentID string) {
	s.mutate(func() bool {
		set, ok := s.replies[parentID]
		if !ok {
			set = &ReplySet{ParentID: parentID}
			s.replies[parentID] = set
		}
		set.Loading = true
		return true
	})
}

// LoadReplies stores a fetched reply page. With appendPage the page is
// merged after the replies already held (skipping known ids); otherwise it
// replaces them. The server's reply total becomes the parent's
// repliesCount. A set that was collapsed meanwhile is not recreated.
func (s *Store) LoadReplies(parentID string, replies []contract.Comment, p contract.Pagination, appendPage bool) bool {
	return s.mutate(func() bool {
		set, ok := s.replies[parentID]
		if !ok {
			return false
		}
		var list []Comment
		if appendPage {
			list = set.Replies
		}
		for _, w := range replies {
			if w.Parent() != parentID {
				continue
			}
			cur := indexOf(list, w.ID)
			if cur >= 0 {
				list[cur] = fromWire(w, s.viewer, &list[cur])
				continue
			}
			list = append(list, fromWire(w, s.viewer, nil))
		}
		if !appendPage {
			list, p = mergePending(list, set.pending, p, s.viewer)
		}
		set.pending = nil
		set.Replies = list
		set.Loaded = true
		set.Loading = false
		set.Pagination = p
		s.eachCopyOf(parentID, func(c *Comment) { c.RepliesCount = p.TotalComments })
		return true
	})
}

// FailReplies clears the loading flag after a failed fetch. A set that never
// loaded is discarded so the thread reads as collapsed again.
func (s *Store) FailReplies(parentID string) {
	s.mutate(func() bool {
		set, ok := s.replies[parentID]
		if !ok {
			return false
		}
		if !set.Loaded {
			delete(s.replies, parentID)
			return true
		}
		set.Loading = false
		return true
	})
}

// CollapseReplies discards the reply set of parentID and those of its
// loaded descendants.
func (s *Store) CollapseReplies(parentID string) bool {
	return s.mutate(func() bool {
		if _, ok := s.replies[parentID]; !ok {
			return false
		}
		s.dropReplies(parentID)
		return true
	})
}

// InsertReply appends a reply to its parent's set if that set is loaded
// and does not hold it yet; the parent's counts move once. While the first
// page is still loading the reply is kept back and merged when the page
// lands. It reports whether the reply was inserted.
func (s *Store) InsertReply(c contract.Comment) bool {
	parent := c.Parent()
	if parent == "" || c.ID == "" {
		return false
	}
	return s.mutate(func() bool {
		set, ok := s.replies[parent]
		if !ok || set.index(c.ID) >= 0 {
			return false
		}
		if !set.Loaded {
			if set.Loading && !pendingHas(set.pending, c.ID) {
				set.pending = append(set.pending, c)
			}
			return false
		}
		set.Replies = append(set.Replies, fromWire(c, s.viewer, nil))
		set.Pagination.TotalComments++
		s.eachCopyOf(parent, func(p *Comment) { p.RepliesCount++ })
		return true
	})
}

// mergePending appends the held-back replies the fetched page lacks. When
// the page covers the whole thread, a missing reply was created after the
// server counted, so the total grows with it; otherwise the server may
// already count it on a later page and the total is left alone.
func mergePending(list []Comment, pending []contract.Comment, p contract.Pagination, viewer string) ([]Comment, contract.Pagination) {
	complete := len(list) >= p.TotalComments
	for _, w := range pending {
		if indexOf(list, w.ID) >= 0 {
			continue
		}
		list = append(list, fromWire(w, viewer, nil))
		if complete {
			p.TotalComments++
		}
	}
	if complete {
		p.TotalPages = pagesFor(p.TotalComments, p.Limit)
	}
	return list, p
}

func pendingHas(pending []contract.Comment, id string) bool {
	for _, c := range pending {
		if c.ID == id {
			return true
		}
	}
	return false
}
