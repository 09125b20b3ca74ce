package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/comment-sync/internal/contract"
)

var (
	ErrConflict     = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")
)

type CreateUserParams struct {
	Name         string
	Email        string
	PasswordHash string
}

// UserRow is a user together with its password hash.
type UserRow struct {
	User         contract.User
	PasswordHash string
}

type UserStore interface {
	CreateUser(ctx context.Context, p CreateUserParams) (contract.User, error)
	UserByEmail(ctx context.Context, email string) (UserRow, error)
	UserByID(ctx context.Context, id string) (contract.User, error)
}

type InMemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]UserRow
	byEmail map[string]string
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byID:    make(map[string]UserRow),
		byEmail: make(map[string]string),
	}
}

func (s *InMemoryUserStore) CreateUser(_ context.Context, p CreateUserParams) (contract.User, error) {
	key := strings.ToLower(strings.TrimSpace(p.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[key]; ok {
		return contract.User{}, ErrConflict
	}
	u := contract.User{ID: uuid.NewString(), Name: p.Name, Email: strings.TrimSpace(p.Email)}
	s.byID[u.ID] = UserRow{User: u, PasswordHash: p.PasswordHash}
	s.byEmail[key] = u.ID
	return u, nil
}

func (s *InMemoryUserStore) UserByEmail(_ context.Context, email string) (UserRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return UserRow{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *InMemoryUserStore) UserByID(_ context.Context, id string) (contract.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.byID[id]
	if !ok {
		return contract.User{}, ErrUserNotFound
	}
	return row.User, nil
}

type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

func (s *PostgresUserStore) CreateUser(ctx context.Context, p CreateUserParams) (contract.User, error) {
	const q = `
INSERT INTO users (id, name, email, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING id::text, name, email`
	var u contract.User
	err := s.pool.QueryRow(ctx, q, uuid.New(), p.Name, strings.TrimSpace(p.Email), p.PasswordHash).
		Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		// unique violation
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return contract.User{}, ErrConflict
		}
		return contract.User{}, err
	}
	return u, nil
}

func (s *PostgresUserStore) UserByEmail(ctx context.Context, email string) (UserRow, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return UserRow{}, ErrUserNotFound
	}
	const q = `
SELECT id::text, name, email, password_hash
FROM users
WHERE lower(email) = lower($1)
LIMIT 1`
	var row UserRow
	err := s.pool.QueryRow(ctx, q, email).Scan(&row.User.ID, &row.User.Name, &row.User.Email, &row.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRow{}, ErrUserNotFound
	}
	return row, err
}

func (s *PostgresUserStore) UserByID(ctx context.Context, id string) (contract.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return contract.User{}, ErrUserNotFound
	}
	var u contract.User
	err := s.pool.QueryRow(ctx, `SELECT id::text, name, email FROM users WHERE id = $1 LIMIT 1`, id).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return contract.User{}, ErrUserNotFound
	}
	return u, err
}
