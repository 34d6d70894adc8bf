package broadcast

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const stickySchema = `CREATE TABLE IF NOT EXISTS sticky (
	topic      TEXT PRIMARY KEY,
	fields     TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLStore keeps retained announcements in a SQLite database.
type SQLStore struct {
	db      *sql.DB
	timeout time.Duration
}

// OpenSQLStore opens (and if needed creates) the database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("broadcast/sql: open %s: %w", path, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db, timeout: 5 * time.Second}
	ctx, cancel := s.ctx()
	defer cancel()
	if _, err := db.ExecContext(ctx, stickySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("broadcast/sql: create schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Load returns the retained announcement for topic.
func (s *SQLStore) Load(topic string) (Announcement, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var (
		raw     string
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fields, updated_at FROM sticky WHERE topic = ?`, topic).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Announcement{}, false, nil
	}
	if err != nil {
		return Announcement{}, false, fmt.Errorf("broadcast/sql: load %s: %w", topic, err)
	}

	var fields Fields
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Announcement{}, false, fmt.Errorf("broadcast/sql: decode %s: %w", topic, err)
	}
	return Announcement{Topic: topic, Fields: fields, Time: time.UnixMilli(updated)}, true, nil
}

// Save upserts the announcement for its topic.
func (s *SQLStore) Save(a Announcement) error {
	raw, err := json.Marshal(a.Fields)
	if err != nil {
		return fmt.Errorf("broadcast/sql: encode %s: %w", a.Topic, err)
	}

	ctx, cancel := s.ctx()
	defer cancel()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sticky (topic, fields, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(topic) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		a.Topic, string(raw), a.Time.UnixMilli())
	if err != nil {
		return fmt.Errorf("broadcast/sql: save %s: %w", a.Topic, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
