// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/tistorylab/autopub/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL persistence layer: stored login cookies keyed by
// blog name, plus the post archive.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const sqlInitSchema = `
CREATE TABLE IF NOT EXISTS blog_cookies (
    blog_name  TEXT PRIMARY KEY,
    cookies    JSONB NOT NULL,
    saved_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS blog_posts (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    content          TEXT NOT NULL,
    meta_description TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    tistory_url      TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);`

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlInitSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// -- Cookie credentials --

const sqlUpsertCookies = `
INSERT INTO blog_cookies (blog_name, cookies, saved_at)
VALUES ($1, $2, $3)
ON CONFLICT (blog_name) DO UPDATE SET
    cookies = EXCLUDED.cookies,
    saved_at = EXCLUDED.saved_at;`

// SaveCookies upserts the cookie set for the blog.
func (s *Store) SaveCookies(ctx context.Context, blogName string, cookies []schemas.Cookie) error {
	payload, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertCookies, blogName, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save cookies for %q: %w", blogName, err)
	}
	s.log.Info("Saved cookies.", zap.String("blog", blogName), zap.Int("count", len(cookies)))
	return nil
}

// LoadCookies returns the stored cookies whose domain belongs to
// tistory.com. A missing record yields (nil, nil).
func (s *Store) LoadCookies(ctx context.Context, blogName string) ([]schemas.Cookie, error) {
	var payload []byte
	row := s.pool.QueryRow(ctx, `SELECT cookies FROM blog_cookies WHERE blog_name = $1`, blogName)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load cookies for %q: %w", blogName, err)
	}

	var all []schemas.Cookie
	if err := json.Unmarshal(payload, &all); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cookies for %q: %w", blogName, err)
	}

	filtered := make([]schemas.Cookie, 0, len(all))
	for _, c := range all {
		if strings.Contains(c.Domain, "tistory.com") {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// HasCookies reports whether a record exists and when it was saved.
func (s *Store) HasCookies(ctx context.Context, blogName string) (bool, time.Time, error) {
	var savedAt time.Time
	row := s.pool.QueryRow(ctx, `SELECT saved_at FROM blog_cookies WHERE blog_name = $1`, blogName)
	if err := row.Scan(&savedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, fmt.Errorf("failed to check cookies for %q: %w", blogName, err)
	}
	return true, savedAt, nil
}

// ClearCookies deletes the record. Clearing an absent record is not an error.
func (s *Store) ClearCookies(ctx context.Context, blogName string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM blog_cookies WHERE blog_name = $1`, blogName); err != nil {
		return fmt.Errorf("failed to clear cookies for %q: %w", blogName, err)
	}
	s.log.Info("Cleared cookies.", zap.String("blog", blogName))
	return nil
}

// -- Post archive --

const sqlInsertPost = `
INSERT INTO blog_posts (id, title, content, meta_description, status, tistory_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

// CreatePost stores a freshly generated post with status "created" and
// returns its id.
func (s *Store) CreatePost(ctx context.Context, content *schemas.GeneratedContent) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, sqlInsertPost,
		id, content.Title, content.HTML, content.MetaDescription,
		string(schemas.PostCreated), "", now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create post: %w", err)
	}
	return id, nil
}

const sqlUpdatePostStatus = `
UPDATE blog_posts SET status = $2, tistory_url = $3, updated_at = $4 WHERE id = $1;`

// UpdatePostStatus moves a post to published/failed and records its URL.
func (s *Store) UpdatePostStatus(ctx context.Context, id string, status schemas.PostStatus, tistoryURL string) error {
	tag, err := s.pool.Exec(ctx, sqlUpdatePostStatus, id, string(status), tistoryURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update post %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %q not found", id)
	}
	return nil
}

const sqlListPosts = `
SELECT id, title, content, meta_description, status, tistory_url, created_at, updated_at
FROM blog_posts ORDER BY created_at DESC LIMIT $1;`

// maxPostListLimit caps ListPosts regardless of the caller's ask.
const maxPostListLimit = 50

// ListPosts returns the newest posts, capped at 50.
func (s *Store) ListPosts(ctx context.Context, limit int) ([]schemas.Post, error) {
	if limit <= 0 || limit > maxPostListLimit {
		limit = maxPostListLimit
	}

	rows, err := s.pool.Query(ctx, sqlListPosts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []schemas.Post
	for rows.Next() {
		var p schemas.Post
		var status string
		if err := rows.Scan(&p.ID, &p.Title, &p.HTML, &p.MetaDescription, &status, &p.TistoryURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		p.Status = schemas.PostStatus(status)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate post rows: %w", err)
	}
	return posts, nil
}
