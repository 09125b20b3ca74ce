package store

import (
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
)

// Apply reconciles a push event. Created top-level comments go to the
// feed; created replies go to their parent's set only while it is loaded.
// Every other event is applied by id wherever the comment is held.
func (s *Store) Apply(ev contract.Event) bool {
	switch e := ev.(type) {
	case contract.CommentCreated:
		c := e.Comment
		if parent := e.Parent(); parent != "" {
			c.ParentID = &parent
			return s.InsertReply(c)
		}
		return s.InsertTopLevel(c)
	case contract.CommentUpdated:
		return s.Replace(e.Comment)
	case contract.CommentDeleted:
		return s.Remove(e.CommentID)
	case contract.CommentLiked:
		return s.MergeCounts(e.CommentID, e.LikesCount, e.DislikesCount)
	case contract.CommentDisliked:
		return s.MergeCounts(e.CommentID, e.LikesCount, e.DislikesCount)
	default:
		s.log.Debug("push event ignored", zap.String("event", ev.Name()))
		return false
	}
}
