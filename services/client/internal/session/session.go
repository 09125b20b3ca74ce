// Package session tracks the signed-in user of the process and keeps the
// store's viewer in step with it.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
	"github.com/example/comment-sync/services/client/internal/store"
	"github.com/example/comment-sync/services/client/internal/transport"
)

// Auth is the subset of the backend client used for sessions.
type Auth interface {
	Login(ctx context.Context, email, password string) (contract.User, error)
	Register(ctx context.Context, name, email, password string) (contract.User, error)
	Me(ctx context.Context) (contract.User, error)
	Logout(ctx context.Context) error
	Token() string
}

var _ Auth = (*transport.Client)(nil)

type Session struct {
	api   Auth
	store *store.Store
	log   *zap.Logger

	mu   sync.RWMutex
	user *contract.User
}

// New creates an anonymous session. st may be nil.
func New(api Auth, st *store.Store, log *zap.Logger) *Session {
	return &Session{api: api, store: st, log: logging.OrNop(log)}
}

// Attach creates a session for c and registers it as c's unauthorized
// hook, so an expired session is forgotten on the first 401.
func Attach(c *transport.Client, st *store.Store, log *zap.Logger) *Session {
	s := New(c, st, log)
	c.SetOnUnauthorized(s.Expire)
	return s
}

// Init restores the user of an existing session. A missing or expired
// session leaves the process anonymous and is not an error.
func (s *Session) Init(ctx context.Context) error {
	u, err := s.api.Me(ctx)
	if errors.Is(err, transport.ErrAuth) {
		s.set(nil)
		return nil
	}
	if err != nil {
		return err
	}
	s.set(&u)
	return nil
}

func (s *Session) Login(ctx context.Context, email, password string) (contract.User, error) {
	u, err := s.api.Login(ctx, email, password)
	if err != nil {
		return contract.User{}, err
	}
	s.set(&u)
	s.log.Info("signed in", zap.String("user_id", u.ID))
	return u, nil
}

func (s *Session) Register(ctx context.Context, name, email, password string) (contract.User, error) {
	u, err := s.api.Register(ctx, name, email, password)
	if err != nil {
		return contract.User{}, err
	}
	s.set(&u)
	s.log.Info("registered", zap.String("user_id", u.ID))
	return u, nil
}

// Teardown logs out. Local state is cleared even when the server call
// fails; the error is still returned.
func (s *Session) Teardown(ctx context.Context) error {
	err := s.api.Logout(ctx)
	s.set(nil)
	if err != nil {
		s.log.Warn("logout failed", zap.Error(err))
	}
	return err
}

// Expire forgets the user without calling the server.
func (s *Session) Expire() {
	if s.Authenticated() {
		s.log.Info("session expired")
	}
	s.set(nil)
}

// User returns the signed-in user; ok is false when anonymous.
func (s *Session) User() (contract.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return contract.User{}, false
	}
	return *s.user, true
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

func (s *Session) Token() string { return s.api.Token() }

func (s *Session) set(u *contract.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	if s.store == nil {
		return
	}
	if u == nil {
		s.store.SetViewer("")
		return
	}
	s.store.SetViewer(u.ID)
}
