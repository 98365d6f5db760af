package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/inficreator0/hello-mom/internal/domain"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DefaultAccount is the credentials key used by the commands, which sign in
// one user at a time.
const DefaultAccount = "default"

var (
	_ domain.TokenRepository = (*Repository)(nil)
	_ domain.PageRepository  = (*Repository)(nil)
)

// Repository implements domain.TokenRepository and domain.PageRepository on
// SQLite or PostgreSQL.
type Repository struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

// Open connects to the cache at dsn, verifies the connection, creates the
// tables if needed and returns a new Repository. A postgres:// or
// postgresql:// URL selects PostgreSQL; anything else is a SQLite path, with
// ":memory:" giving a throwaway database. The caller should call Close when
// the repository is no longer needed.
func Open(dsn string) (*Repository, error) {
	driver := "sqlite"
	isPostgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
	if isPostgres {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if !isPostgres {
		// Each connection to :memory: is its own database, and SQLite allows
		// one writer anyway.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db, postgres: isPostgres, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (r *Repository) rebind(query string) string {
	if !r.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// GetToken returns the saved bearer token for account, or "" if none.
func (r *Repository) GetToken(ctx context.Context, account string) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT token FROM credentials WHERE account = ?`), account,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get token for %s: %w", account, err)
	}
	return token, nil
}

// SaveToken upserts the bearer token for account.
func (r *Repository) SaveToken(ctx context.Context, account, token string) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO credentials (account, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (account) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`),
		account, token, r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save token for %s: %w", account, err)
	}
	return nil
}

// DeleteToken forgets the token for account. Deleting a missing token is not
// an error.
func (r *Repository) DeleteToken(ctx context.Context, account string) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM credentials WHERE account = ?`), account)
	if err != nil {
		return fmt.Errorf("delete token for %s: %w", account, err)
	}
	return nil
}

// SavePage stores page as JSON under viewKey, replacing any earlier one.
func (r *Repository) SavePage(ctx context.Context, viewKey string, page *domain.Page) error {
	payload, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode page %s: %w", viewKey, err)
	}

	_, err = r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO page_snapshots (view_key, payload, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT (view_key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`),
		viewKey, string(payload), r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save page %s: %w", viewKey, err)
	}
	return nil
}

// LoadPage returns the page stored under viewKey, or nil if there is none.
func (r *Repository) LoadPage(ctx context.Context, viewKey string) (*domain.Page, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT payload FROM page_snapshots WHERE view_key = ?`), viewKey,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load page %s: %w", viewKey, err)
	}

	var page domain.Page
	if err := json.Unmarshal([]byte(payload), &page); err != nil {
		return nil, fmt.Errorf("decode page %s: %w", viewKey, err)
	}
	return &page, nil
}

// DeleteOldPages removes snapshots saved more than maxAge ago and returns
// how many were deleted.
func (r *Repository) DeleteOldPages(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := r.now().Add(-maxAge).UnixMilli()
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM page_snapshots WHERE saved_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired pages: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
