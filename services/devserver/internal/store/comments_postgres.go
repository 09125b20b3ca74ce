package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/comment-sync/internal/contract"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables used by the Postgres stores if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const (
	reactionLike    int16 = 1
	reactionDislike int16 = -1
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresCommentStore persists comments in Postgres.
type PostgresCommentStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCommentStore creates a store backed by Postgres.
func NewPostgresCommentStore(pool *pgxpool.Pool) *PostgresCommentStore {
	return &PostgresCommentStore{pool: pool}
}

const selectComment = `
SELECT c.id::text, c.content, u.id::text, u.name, u.email, c.parent_id::text,
       ARRAY(SELECT r.user_id::text FROM comment_reactions r WHERE r.comment_id = c.id AND r.kind = 1 ORDER BY r.user_id),
       ARRAY(SELECT r.user_id::text FROM comment_reactions r WHERE r.comment_id = c.id AND r.kind = -1 ORDER BY r.user_id),
       (SELECT count(*) FROM comment_reactions r WHERE r.comment_id = c.id AND r.kind = 1)::int AS likes_count,
       (SELECT count(*) FROM comment_reactions r WHERE r.comment_id = c.id AND r.kind = -1)::int AS dislikes_count,
       (SELECT count(*) FROM comments ch WHERE ch.parent_id = c.id)::int,
       c.created_at, c.updated_at
FROM comments c
JOIN users u ON u.id = c.user_id`

func scanComment(row pgx.Row) (contract.Comment, error) {
	var c contract.Comment
	err := row.Scan(&c.ID, &c.Content, &c.User.ID, &c.User.Name, &c.User.Email, &c.ParentID,
		&c.Likes, &c.Dislikes, &c.LikesCount, &c.DislikesCount, &c.RepliesCount,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresCommentStore) Create(ctx context.Context, author contract.User, content string, parentID *string) (contract.Comment, error) {
	authorID, err := uuid.Parse(author.ID)
	if err != nil {
		return contract.Comment{}, fmt.Errorf("invalid author id %q: %w", author.ID, err)
	}
	var parent *uuid.UUID
	if parentID != nil {
		p, err := uuid.Parse(*parentID)
		if err != nil {
			return contract.Comment{}, ErrParentNotFound
		}
		parent = &p
	}

	id := uuid.New()
	const q = `INSERT INTO comments (id, user_id, parent_id, content) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, q, id, authorID, parent, content); err != nil {
		var pgErr *pgconn.PgError
		// foreign key violation on parent_id
		if errors.As(err, &pgErr) && pgErr.Code == "23503" && parent != nil {
			return contract.Comment{}, ErrParentNotFound
		}
		return contract.Comment{}, err
	}
	return s.get(ctx, s.pool, id.String())
}

func (s *PostgresCommentStore) Get(ctx context.Context, id string) (contract.Comment, error) {
	return s.get(ctx, s.pool, id)
}

func (s *PostgresCommentStore) get(ctx context.Context, q querier, id string) (contract.Comment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return contract.Comment{}, ErrNotFound
	}
	c, err := scanComment(q.QueryRow(ctx, selectComment+` WHERE c.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return contract.Comment{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresCommentStore) List(ctx context.Context, lq ListQuery) ([]contract.Comment, int, error) {
	lq = lq.normalize()

	var (
		where string
		args  []any
	)
	if lq.ParentID == "" {
		where = ` WHERE c.parent_id IS NULL`
	} else {
		if _, err := uuid.Parse(lq.ParentID); err != nil {
			return []contract.Comment{}, 0, nil
		}
		where = ` WHERE c.parent_id = $1`
		args = append(args, lq.ParentID)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM comments c`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := ` ORDER BY c.created_at DESC, c.id DESC`
	switch {
	case lq.ParentID != "":
		order = ` ORDER BY c.created_at ASC, c.id ASC`
	case lq.Sort == contract.SortMostLiked:
		order = ` ORDER BY likes_count DESC, c.created_at DESC, c.id DESC`
	case lq.Sort == contract.SortMostDisliked:
		order = ` ORDER BY dislikes_count DESC, c.created_at DESC, c.id DESC`
	}
	n := len(args)
	q := selectComment + where + order + fmt.Sprintf(` LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, lq.Limit, lq.offset())

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []contract.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// owner returns the author of id, or ErrNotFound.
func owner(ctx context.Context, q querier, id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrNotFound
	}
	var userID string
	err := q.QueryRow(ctx, `SELECT user_id::text FROM comments WHERE id = $1`, id).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return userID, err
}

func (s *PostgresCommentStore) Update(ctx context.Context, id, userID, content string) (contract.Comment, error) {
	author, err := owner(ctx, s.pool, id)
	if err != nil {
		return contract.Comment{}, err
	}
	if author != userID {
		return contract.Comment{}, ErrForbidden
	}
	const q = `UPDATE comments SET content = $1, updated_at = now() WHERE id = $2 AND user_id = $3`
	tag, err := s.pool.Exec(ctx, q, content, id, userID)
	if err != nil {
		return contract.Comment{}, err
	}
	if tag.RowsAffected() == 0 {
		return contract.Comment{}, ErrNotFound
	}
	return s.get(ctx, s.pool, id)
}

func (s *PostgresCommentStore) Delete(ctx context.Context, id, userID string) (Deleted, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Deleted{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := s.get(ctx, tx, id)
	if err != nil {
		return Deleted{}, err
	}
	if c.User.ID != userID {
		return Deleted{}, ErrForbidden
	}

	const tree = `
WITH RECURSIVE tree AS (
    SELECT id FROM comments WHERE id = $1
    UNION ALL
    SELECT ch.id FROM comments ch JOIN tree t ON ch.parent_id = t.id
)
SELECT id::text FROM tree`
	rows, err := tx.Query(ctx, tree, id)
	if err != nil {
		return Deleted{}, err
	}
	removed, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Deleted{}, err
	}

	// replies go with the parent through ON DELETE CASCADE
	if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id); err != nil {
		return Deleted{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Deleted{}, err
	}
	return Deleted{Comment: c, Removed: removed}, nil
}

func (s *PostgresCommentStore) Like(ctx context.Context, id, userID string) (Reaction, error) {
	return s.react(ctx, id, userID, reactionLike)
}

func (s *PostgresCommentStore) Dislike(ctx context.Context, id, userID string) (Reaction, error) {
	return s.react(ctx, id, userID, reactionDislike)
}

func (s *PostgresCommentStore) react(ctx context.Context, id, userID string, kind int16) (Reaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Reaction{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := owner(ctx, tx, id); err != nil {
		return Reaction{}, err
	}

	var current int16
	err = tx.QueryRow(ctx,
		`SELECT kind FROM comment_reactions WHERE comment_id = $1 AND user_id = $2 FOR UPDATE`,
		id, userID).Scan(&current)

	action := ActionAdded
	switch {
	case errors.Is(err, pgx.ErrNoRows), err == nil && current != kind:
		_, err = tx.Exec(ctx, `
INSERT INTO comment_reactions (comment_id, user_id, kind) VALUES ($1, $2, $3)
ON CONFLICT (comment_id, user_id) DO UPDATE SET kind = EXCLUDED.kind`,
			id, userID, kind)
	case err != nil:
		return Reaction{}, err
	default:
		action = ActionRemoved
		_, err = tx.Exec(ctx,
			`DELETE FROM comment_reactions WHERE comment_id = $1 AND user_id = $2`, id, userID)
	}
	if err != nil {
		return Reaction{}, err
	}

	c, err := s.get(ctx, tx, id)
	if err != nil {
		return Reaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Reaction{}, err
	}
	return Reaction{Comment: c, Action: action}, nil
}
