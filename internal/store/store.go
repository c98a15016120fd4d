// Package store provides SQLite persistence for techstream.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/njmarshall/techstream/internal/model"
)

// ErrDuplicateURL is returned by SaveItem when an item with the same URL
// already exists. Expected during normal operation, not a failure.
var ErrDuplicateURL = errors.New("item with this URL already exists")

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Enable WAL mode for file-based databases (not :memory:)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		source_name TEXT NOT NULL,
		category TEXT,
		published_at DATETIME NOT NULL,
		summary TEXT,
		body TEXT,
		sentiment TEXT DEFAULT 'neutral',
		reading_minutes INTEGER DEFAULT 1,
		technologies TEXT,
		is_processed INTEGER DEFAULT 0,
		metadata TEXT,
		fetched_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_published ON items(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_items_source ON items(source_name);
	CREATE INDEX IF NOT EXISTS idx_items_url ON items(url);
	CREATE INDEX IF NOT EXISTS idx_items_fetched ON items(fetched_at DESC);

	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT,
		total_fetched INTEGER DEFAULT 0,
		last_fetch_count INTEGER DEFAULT 0,
		last_fetched_at DATETIME,
		last_fetch_ok INTEGER DEFAULT 0,
		last_error TEXT
	);

	CREATE TABLE IF NOT EXISTS summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_url TEXT NOT NULL,
		provider TEXT NOT NULL,
		post_summary TEXT NOT NULL,
		community_gist TEXT,
		key_topics TEXT,
		reading_time INTEGER,
		target_audience TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_item ON summaries(item_url);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveItem inserts a single item. Returns ErrDuplicateURL when an item with
// the same URL exists; the URL uniqueness constraint is the concurrency guard
// against two writers racing on the same content.
func (s *Store) SaveItem(item model.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO items (
			title, url, source_name, category, published_at, summary, body,
			sentiment, reading_minutes, technologies, is_processed, metadata, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.Title,
		item.URL,
		item.SourceName,
		item.Category,
		item.Published,
		item.Summary,
		item.Body,
		sentimentOrDefault(item.Sentiment),
		item.ReadingMinutes,
		encodeJSON(item.Technologies),
		boolToInt(item.IsProcessed),
		encodeJSON(item.Metadata),
		fetchedOrNow(item.Fetched),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: items.url") {
			return ErrDuplicateURL
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// SaveItems stores items in bulk, returning the count of new items inserted.
// Duplicates (by URL) are silently ignored via INSERT OR IGNORE.
func (s *Store) SaveItems(items []model.ContentItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 {
		return 0, nil
	}

	stmt, err := s.db.Prepare(`
		INSERT OR IGNORE INTO items (
			title, url, source_name, category, published_at, summary, body,
			sentiment, reading_minutes, technologies, is_processed, metadata, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	newCount := 0
	for _, item := range items {
		result, err := stmt.Exec(
			item.Title,
			item.URL,
			item.SourceName,
			item.Category,
			item.Published,
			item.Summary,
			item.Body,
			sentimentOrDefault(item.Sentiment),
			item.ReadingMinutes,
			encodeJSON(item.Technologies),
			boolToInt(item.IsProcessed),
			encodeJSON(item.Metadata),
			fetchedOrNow(item.Fetched),
		)
		if err != nil {
			return newCount, err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return newCount, err
		}
		if affected > 0 {
			newCount++
		}
	}

	return newCount, nil
}

// FindByURL retrieves a single item by URL. Returns (nil, nil) when absent.
func (s *Store) FindByURL(url string) (*model.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.queryItems(`
		SELECT title, url, source_name, category, published_at, summary, body,
			sentiment, reading_minutes, technologies, is_processed, metadata, fetched_at
		FROM items WHERE url = ?
	`, url)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// ExistsURL reports whether any stored item has the given URL.
func (s *Store) ExistsURL(url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM items WHERE url = ?", url).Scan(&n)
	return n > 0, err
}

// ExistsURLSince reports whether an item with the given URL was fetched
// after the cutoff. Used by time-scoped dedup on forced-refresh paths.
func (s *Store) ExistsURLSince(url string, cutoff time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM items WHERE url = ? AND fetched_at > ?", url, cutoff,
	).Scan(&n)
	return n > 0, err
}

// RecentItems retrieves the newest items ordered by published time.
func (s *Store) RecentItems(limit int) ([]model.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryItems(`
		SELECT title, url, source_name, category, published_at, summary, body,
			sentiment, reading_minutes, technologies, is_processed, metadata, fetched_at
		FROM items
		ORDER BY published_at DESC
		LIMIT ?
	`, limit)
}

// UnprocessedItems returns items the summarization stage has not handled yet.
func (s *Store) UnprocessedItems(limit int) ([]model.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryItems(`
		SELECT title, url, source_name, category, published_at, summary, body,
			sentiment, reading_minutes, technologies, is_processed, metadata, fetched_at
		FROM items
		WHERE is_processed = 0
		ORDER BY fetched_at ASC
		LIMIT ?
	`, limit)
}

// MarkProcessed flags an item as handled by the summarization stage.
func (s *Store) MarkProcessed(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE items SET is_processed = 1 WHERE url = ?", url)
	return err
}

// ItemCount returns total item count.
func (s *Store) ItemCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count)
	return count, err
}

// PruneOlderThan deletes items fetched before the cutoff, returning the
// number of rows removed.
func (s *Store) PruneOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM items WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// StatsPatch describes the outcome of one fetch attempt against a source.
type StatsPatch struct {
	OK        bool
	ItemCount int
	Error     string
	At        time.Time
}

// UpdateSourceStats upserts running statistics for a source after a fetch.
func (s *Store) UpdateSourceStats(sourceID, name string, patch StatsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sources (id, name, total_fetched, last_fetch_count, last_fetched_at, last_fetch_ok, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			total_fetched = total_fetched + excluded.last_fetch_count,
			last_fetch_count = excluded.last_fetch_count,
			last_fetched_at = excluded.last_fetched_at,
			last_fetch_ok = excluded.last_fetch_ok,
			last_error = excluded.last_error
	`, sourceID, name, patch.ItemCount, patch.ItemCount, patch.At, boolToInt(patch.OK), patch.Error)
	return err
}

// SourceStats retrieves persisted stats for a source.
// Returns a zero value when the source has never been recorded.
func (s *Store) SourceStats(sourceID string) (model.SourceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st model.SourceStats
	var at sql.NullTime
	var ok int
	var lastErr sql.NullString
	err := s.db.QueryRow(`
		SELECT total_fetched, last_fetch_count, last_fetched_at, last_fetch_ok, last_error
		FROM sources WHERE id = ?
	`, sourceID).Scan(&st.TotalFetched, &st.LastFetchCount, &at, &ok, &lastErr)
	if err == sql.ErrNoRows {
		return model.SourceStats{}, nil
	}
	if err != nil {
		return model.SourceStats{}, err
	}
	st.LastFetchedAt = at.Time
	st.LastFetchOK = ok != 0
	st.LastError = lastErr.String
	return st, nil
}

// SaveSummary stores an AI-generated summary for an item.
func (s *Store) SaveSummary(itemURL, provider string, sum model.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO summaries (item_url, provider, post_summary, community_gist, key_topics, reading_time, target_audience)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, itemURL, provider, sum.PostSummary, sum.CommunityGist, encodeJSON(sum.KeyTopics), sum.ReadingTime, sum.TargetAudience)
	return err
}

// GetSummary retrieves the most recent summary for an item.
// Returns (nil, nil) when no summary exists.
func (s *Store) GetSummary(itemURL string) (*model.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum model.Summary
	var topics sql.NullString
	err := s.db.QueryRow(`
		SELECT post_summary, community_gist, key_topics, reading_time, target_audience
		FROM summaries
		WHERE item_url = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, itemURL).Scan(&sum.PostSummary, &sum.CommunityGist, &topics, &sum.ReadingTime, &sum.TargetAudience)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if topics.Valid {
		_ = json.Unmarshal([]byte(topics.String), &sum.KeyTopics)
	}
	return &sum, nil
}

// queryItems is a helper that executes a query and scans results into items.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryItems(query string, args ...any) ([]model.ContentItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.ContentItem
	for rows.Next() {
		var item model.ContentItem
		var processedInt int
		var techs, meta sql.NullString
		err := rows.Scan(
			&item.Title,
			&item.URL,
			&item.SourceName,
			&item.Category,
			&item.Published,
			&item.Summary,
			&item.Body,
			&item.Sentiment,
			&item.ReadingMinutes,
			&techs,
			&processedInt,
			&meta,
			&item.Fetched,
		)
		if err != nil {
			return nil, err
		}
		item.IsProcessed = processedInt != 0
		if techs.Valid && techs.String != "" {
			_ = json.Unmarshal([]byte(techs.String), &item.Technologies)
		}
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &item.Metadata)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func encodeJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func sentimentOrDefault(s string) string {
	if s == "" {
		return "neutral"
	}
	return s
}

func fetchedOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
