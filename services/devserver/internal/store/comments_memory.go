package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/comment-sync/internal/contract"
)

// InMemoryCommentStore is a development-only in-memory implementation.
type InMemoryCommentStore struct {
	mu       sync.RWMutex
	comments map[string]*memComment
	now      func() time.Time
}

type memComment struct {
	c        contract.Comment
	likes    map[string]struct{}
	dislikes map[string]struct{}
	replies  int
}

func NewInMemoryCommentStore() *InMemoryCommentStore {
	return &InMemoryCommentStore{
		comments: make(map[string]*memComment),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryCommentStore) Create(_ context.Context, author contract.User, content string, parentID *string) (contract.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID != nil {
		parent, ok := s.comments[*parentID]
		if !ok {
			return contract.Comment{}, ErrParentNotFound
		}
		parent.replies++
		parent.c.RepliesCount = parent.replies
	}

	now := s.now()
	m := &memComment{
		c: contract.Comment{
			ID:        uuid.NewString(),
			Content:   content,
			User:      author,
			ParentID:  parentID,
			CreatedAt: now,
			UpdatedAt: now,
		},
		likes:    make(map[string]struct{}),
		dislikes: make(map[string]struct{}),
	}
	s.comments[m.c.ID] = m
	return m.snapshot(), nil
}

func (s *InMemoryCommentStore) Get(_ context.Context, id string) (contract.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.comments[id]
	if !ok {
		return contract.Comment{}, ErrNotFound
	}
	return m.snapshot(), nil
}

func (s *InMemoryCommentStore) List(_ context.Context, q ListQuery) ([]contract.Comment, int, error) {
	q = q.normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*memComment
	for _, m := range s.comments {
		if m.c.Parent() == q.ParentID {
			matched = append(matched, m)
		}
	}

	byNewest := func(a, b *memComment) bool {
		if !a.c.CreatedAt.Equal(b.c.CreatedAt) {
			return a.c.CreatedAt.After(b.c.CreatedAt)
		}
		return a.c.ID > b.c.ID
	}
	switch {
	case q.ParentID != "":
		// replies read oldest first
		sort.Slice(matched, func(i, j int) bool { return byNewest(matched[j], matched[i]) })
	case q.Sort == contract.SortMostLiked:
		sort.Slice(matched, func(i, j int) bool {
			if len(matched[i].likes) != len(matched[j].likes) {
				return len(matched[i].likes) > len(matched[j].likes)
			}
			return byNewest(matched[i], matched[j])
		})
	case q.Sort == contract.SortMostDisliked:
		sort.Slice(matched, func(i, j int) bool {
			if len(matched[i].dislikes) != len(matched[j].dislikes) {
				return len(matched[i].dislikes) > len(matched[j].dislikes)
			}
			return byNewest(matched[i], matched[j])
		})
	default:
		sort.Slice(matched, func(i, j int) bool { return byNewest(matched[i], matched[j]) })
	}

	total := len(matched)
	start := min(q.offset(), total)
	end := min(start+q.Limit, total)
	out := make([]contract.Comment, 0, end-start)
	for _, m := range matched[start:end] {
		out = append(out, m.snapshot())
	}
	return out, total, nil
}

func (s *InMemoryCommentStore) Update(_ context.Context, id, userID, content string) (contract.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.comments[id]
	if !ok {
		return contract.Comment{}, ErrNotFound
	}
	if m.c.User.ID != userID {
		return contract.Comment{}, ErrForbidden
	}
	m.c.Content = content
	m.c.UpdatedAt = s.now()
	return m.snapshot(), nil
}

func (s *InMemoryCommentStore) Delete(_ context.Context, id, userID string) (Deleted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.comments[id]
	if !ok {
		return Deleted{}, ErrNotFound
	}
	if m.c.User.ID != userID {
		return Deleted{}, ErrForbidden
	}
	out := Deleted{Comment: m.snapshot()}
	s.removeTree(id, &out.Removed)
	if parent, ok := s.comments[m.c.Parent()]; ok && parent.replies > 0 {
		parent.replies--
		parent.c.RepliesCount = parent.replies
	}
	return out, nil
}

// removeTree deletes id and its descendants. Caller holds the write lock.
func (s *InMemoryCommentStore) removeTree(id string, removed *[]string) {
	delete(s.comments, id)
	*removed = append(*removed, id)
	for childID, m := range s.comments {
		if m.c.Parent() == id {
			s.removeTree(childID, removed)
		}
	}
}

func (s *InMemoryCommentStore) Like(_ context.Context, id, userID string) (Reaction, error) {
	return s.react(id, userID, true)
}

func (s *InMemoryCommentStore) Dislike(_ context.Context, id, userID string) (Reaction, error) {
	return s.react(id, userID, false)
}

func (s *InMemoryCommentStore) react(id, userID string, like bool) (Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.comments[id]
	if !ok {
		return Reaction{}, ErrNotFound
	}
	mine, other := m.likes, m.dislikes
	if !like {
		mine, other = m.dislikes, m.likes
	}

	action := ActionAdded
	if _, ok := mine[userID]; ok {
		delete(mine, userID)
		action = ActionRemoved
	} else {
		mine[userID] = struct{}{}
		delete(other, userID)
	}
	return Reaction{Comment: m.snapshot(), Action: action}, nil
}

func (m *memComment) snapshot() contract.Comment {
	c := m.c
	if m.c.ParentID != nil {
		p := *m.c.ParentID
		c.ParentID = &p
	}
	c.Likes = sortedKeys(m.likes)
	c.Dislikes = sortedKeys(m.dislikes)
	c.LikesCount = len(c.Likes)
	c.DislikesCount = len(c.Dislikes)
	c.RepliesCount = m.replies
	return c
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
