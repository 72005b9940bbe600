// Package catalog is the local title database used to look up a title's
// page from a partial name. It is filled by scraping the site's A-Z
// listing and queried by substring, with fuzzy matching as a fallback.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	_ "modernc.org/sqlite"

	"animewatch/internal/media"
)

// maxFuzzyResults caps the fallback result list.
const maxFuzzyResults = 25

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `CREATE TABLE IF NOT EXISTS titles (
	title TEXT PRIMARY KEY,
	link  TEXT NOT NULL
)`

// Store manages the title catalog backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure catalog dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Upsert inserts titles, replacing the link of titles already present.
// Titles are unique, so duplicates collapse onto one row.
func (s *Store) Upsert(ctx context.Context, titles []media.Title) (int, error) {
	if len(titles) == 0 {
		return 0, nil
	}

	var written int
	err := retryOnBusy(ctx, func() error {
		written = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO titles (title, link) VALUES (?, ?)
			 ON CONFLICT(title) DO UPDATE SET link = excluded.link`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range titles {
			name := strings.TrimSpace(t.Name)
			if name == "" || t.Link == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, name, t.Link); err != nil {
				return err
			}
			written++
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("upsert titles: %w", err)
	}
	return written, nil
}

// Count returns the number of titles in the catalog.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM titles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count titles: %w", err)
	}
	return n, nil
}

// Lookup returns the title with exactly this name.
func (s *Store) Lookup(ctx context.Context, name string) (media.Title, bool, error) {
	var t media.Title
	err := s.db.QueryRowContext(ctx, `SELECT title, link FROM titles WHERE title = ?`, name).Scan(&t.Name, &t.Link)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Title{}, false, nil
	}
	if err != nil {
		return media.Title{}, false, fmt.Errorf("lookup title: %w", err)
	}
	return t, true, nil
}

// Search returns titles containing query, case-insensitively. Titles that
// start with query come first, each group in alphabetical order. When
// nothing contains query the catalog is ranked by fuzzy match instead.
func (s *Store) Search(ctx context.Context, query string) ([]media.Title, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	titles, err := s.query(ctx,
		`SELECT title, link FROM titles WHERE title LIKE ? ESCAPE '\'`,
		"%"+escapeLike(query)+"%")
	if err != nil {
		return nil, err
	}
	if len(titles) > 0 {
		rankSubstring(titles, query)
		return titles, nil
	}

	all, err := s.query(ctx, `SELECT title, link FROM titles`)
	if err != nil {
		return nil, err
	}
	return rankFuzzy(all, query), nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]media.Title, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query titles: %w", err)
	}
	defer rows.Close()

	var titles []media.Title
	for rows.Next() {
		var t media.Title
		if err := rows.Scan(&t.Name, &t.Link); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titles: %w", err)
	}
	return titles, nil
}

// rankSubstring orders prefix matches first, then alphabetically.
func rankSubstring(titles []media.Title, query string) {
	q := strings.ToLower(query)
	sort.SliceStable(titles, func(i, j int) bool {
		pi := strings.HasPrefix(strings.ToLower(titles[i].Name), q)
		pj := strings.HasPrefix(strings.ToLower(titles[j].Name), q)
		if pi != pj {
			return pi
		}
		return titles[i].Name < titles[j].Name
	})
}

func rankFuzzy(all []media.Title, query string) []media.Title {
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}

	matches := fuzzy.Find(query, names)
	if len(matches) > maxFuzzyResults {
		matches = matches[:maxFuzzyResults]
	}
	out := make([]media.Title, 0, len(matches))
	for _, m := range matches {
		out = append(out, all[m.Index])
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
