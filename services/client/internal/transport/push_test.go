package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/example/comment-sync/internal/contract"
)

// pushServer accepts websocket connections and hands each one to serve.
func pushServer(t *testing.T, serve func(n int32, conn *websocket.Conn)) string {
	t.Helper()
	var n atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serve(n.Add(1), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeEvent(t *testing.T, conn *websocket.Conn, ev contract.Event) {
	t.Helper()
	b, err := contract.EncodeFrame(ev)
	if err != nil {
		t.Errorf("encode: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Errorf("write: %v", err)
	}
}

func nextEvent(t *testing.T, s *Subscription) contract.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestDialEvents_ReceivesAndReconnects(t *testing.T) {
	url := pushServer(t, func(n int32, conn *websocket.Conn) {
		defer conn.Close()
		writeEvent(t, conn, contract.CommentLiked{CommentID: "c1", LikesCount: int(n), DislikesCount: 0})
		if n == 1 {
			// drop the first connection right away
			return
		}
		// keep the second one open until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s, err := DialEvents(context.Background(), WSOptions{URL: url, ReconnectWait: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	first := nextEvent(t, s).(contract.CommentLiked)
	second := nextEvent(t, s).(contract.CommentLiked)
	if first.LikesCount != 1 || second.LikesCount != 2 {
		t.Fatalf("expected events from both connections, got %+v then %+v", first, second)
	}
	if s.Connects() < 2 {
		t.Fatalf("expected a reconnect, got %d connects", s.Connects())
	}
}

func TestDialEvents_SkipsMalformedAndSplitsBatches(t *testing.T) {
	url := pushServer(t, func(_ int32, conn *websocket.Conn) {
		defer conn.Close()
		a, _ := contract.EncodeFrame(contract.CommentDeleted{CommentID: "c1"})
		b, _ := contract.EncodeFrame(contract.CommentDeleted{CommentID: "c2"})
		batch := string(a) + "\n" + `{"event":"comment:pinned","data":{}}` + "\n" + string(b)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(batch))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s, err := DialEvents(context.Background(), WSOptions{URL: url})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	if got := nextEvent(t, s).Target(); got != "c1" {
		t.Fatalf("expected c1, got %s", got)
	}
	if got := nextEvent(t, s).Target(); got != "c2" {
		t.Fatalf("expected c2, got %s", got)
	}
}

func TestSubscription_CloseIsDeterministic(t *testing.T) {
	url := pushServer(t, func(_ int32, conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s, err := DialEvents(context.Background(), WSOptions{URL: url})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return")
	}
	if _, ok := <-s.Events(); ok {
		t.Fatal("expected events channel to be closed")
	}
}

func TestDialEvents_InvalidURL(t *testing.T) {
	if _, err := DialEvents(context.Background(), WSOptions{URL: "http://example.com/ws"}); err == nil {
		t.Fatal("expected error for non-websocket url")
	}
}

func TestDecodeNATS(t *testing.T) {
	msg := &nats.Msg{
		Subject: "comments.events.comment.updated",
		Data:    []byte(`{"comment":{"_id":"c1","content":"edited"}}`),
	}
	ev, err := decodeNATS(DefaultSubjectPrefix, msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if up, ok := ev.(contract.CommentUpdated); !ok || up.Comment.Content != "edited" {
		t.Fatalf("unexpected event %#v", ev)
	}

	if _, err := decodeNATS(DefaultSubjectPrefix, &nats.Msg{Subject: "other.subject", Data: []byte(`{}`)}); err == nil {
		t.Fatal("expected error for foreign subject")
	}
}
