package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements ResponseCache using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. The three analysis branches
	// share this store, so all access goes through a single connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetResponse returns the cached text for key and bumps its hit counter.
func (s *SQLiteStore) GetResponse(ctx context.Context, key string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		"SELECT response FROM llm_responses WHERE cache_key = ?", key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get response: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE llm_responses SET hits = hits + 1, last_hit_at = ? WHERE cache_key = ?",
		time.Now().UTC(), key); err != nil {
		return "", false, fmt.Errorf("record cache hit: %w", err)
	}
	return text, true, nil
}

// PutResponse stores text under key, replacing any previous entry.
func (s *SQLiteStore) PutResponse(ctx context.Context, key, producer, text string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_responses (id, cache_key, producer, response, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET response = excluded.response, producer = excluded.producer, created_at = excluded.created_at`,
		newULID(), key, producer, text, now)
	if err != nil {
		return fmt.Errorf("put response: %w", err)
	}
	return nil
}

// Stats summarises cache contents per producer.
func (s *SQLiteStore) Stats(ctx context.Context) ([]*ProducerStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT producer, COUNT(*), COALESCE(SUM(hits), 0), COALESCE(SUM(LENGTH(response)), 0)
		 FROM llm_responses GROUP BY producer ORDER BY producer`)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ProducerStats
	for rows.Next() {
		st := &ProducerStats{}
		if err := rows.Scan(&st.Producer, &st.Entries, &st.Hits, &st.Bytes); err != nil {
			return nil, fmt.Errorf("scan cache stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Purge deletes entries created before olderThan. A zero time deletes all.
func (s *SQLiteStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if olderThan.IsZero() {
		res, err = s.db.ExecContext(ctx, "DELETE FROM llm_responses")
	} else {
		res, err = s.db.ExecContext(ctx, "DELETE FROM llm_responses WHERE created_at < ?", olderThan.UTC())
	}
	if err != nil {
		return 0, fmt.Errorf("purge responses: %w", err)
	}
	return res.RowsAffected()
}
