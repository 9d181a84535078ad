package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is a Store persisted in a SQLite database. Document and entry
// bodies are msgpack-encoded field maps. Subscriptions only observe writes
// made through this instance.
type SQLite struct {
	db *sql.DB

	mu     sync.Mutex // serializes writes with their notifications
	closed bool
	notify *notifier
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{db: db, notify: newNotifier()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// migrate runs every embedded migration not yet recorded in schema_migrations.
func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		name := filepath.Base(file)

		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&n); err != nil {
			return fmt.Errorf("failed to query schema_migrations: %w", err)
		}
		if n > 0 {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("migration %s: %w", name, err)
			}
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLite) Set(ctx context.Context, path string, fields Fields) error {
	if err := checkPath(path); err != nil {
		return err
	}
	norm, err := Normalize(fields)
	if err != nil {
		return err
	}
	body, err := encodeBody(norm)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (path, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, path, body, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	s.notify.publishDoc(Snapshot{Path: path, Exists: true, Fields: norm})
	return nil
}

func (s *SQLite) Update(ctx context.Context, path string, fields Fields) error {
	if err := checkPath(path); err != nil {
		return err
	}
	norm, err := Normalize(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	snap, err := s.get(ctx, path)
	if err != nil {
		return err
	}
	if !snap.Exists {
		return ErrNotFound
	}
	for k, v := range norm {
		snap.Fields[k] = v
	}
	body, err := encodeBody(snap.Fields)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE documents SET body = ?, updated_at = ? WHERE path = ?",
		body, time.Now().UnixMilli(), path,
	); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	s.notify.publishDoc(snap)
	return nil
}

func (s *SQLite) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := checkPath(path); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	return s.get(ctx, path)
}

func (s *SQLite) Delete(ctx context.Context, path string) error {
	if err := checkPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE parent = ?", path); err != nil {
		return fmt.Errorf("delete %s entries: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.notify.publishDoc(Snapshot{Path: path})
	}
	return nil
}

func (s *SQLite) Watch(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	snap, err := s.get(ctx, path)
	if err != nil {
		return nil, err
	}
	sub, unsub := s.notify.watchDoc(path, fn)
	sub.push(snap)
	return unsub, nil
}

func (s *SQLite) Append(ctx context.Context, path, collection string, fields Fields) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", err
	}
	norm, err := Normalize(fields)
	if err != nil {
		return "", err
	}
	body, err := encodeBody(norm)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	id := uuid.NewString()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO entries (parent, collection, id, body, created_at) VALUES (?, ?, ?, ?, ?)",
		path, collection, id, body, time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("append %s/%s: %w", path, collection, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("append %s/%s: %w", path, collection, err)
	}

	s.notify.publishEntry(collectionKey(path, collection), Entry{ID: id, Seq: seq, Fields: norm})
	return id, nil
}

func (s *SQLite) WatchAppends(ctx context.Context, path, collection string, fn func(Entry)) (Unsubscribe, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, id, body FROM entries WHERE parent = ? AND collection = ? ORDER BY seq",
		path, collection,
	)
	if err != nil {
		return nil, fmt.Errorf("watch %s/%s: %w", path, collection, err)
	}
	defer rows.Close()

	var backlog []Entry
	for rows.Next() {
		var (
			e    Entry
			body []byte
		)
		if err := rows.Scan(&e.Seq, &e.ID, &body); err != nil {
			return nil, fmt.Errorf("watch %s/%s: %w", path, collection, err)
		}
		if e.Fields, err = decodeBody(body); err != nil {
			return nil, err
		}
		backlog = append(backlog, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("watch %s/%s: %w", path, collection, err)
	}

	sub, unsub := s.notify.watchEntries(collectionKey(path, collection), fn)
	for _, e := range backlog {
		sub.push(e)
	}
	return unsub, nil
}

// Close stops every subscription and closes the database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.notify.close()
	return s.db.Close()
}

// get must be called with s.mu held.
func (s *SQLite) get(ctx context.Context, path string) (Snapshot, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE path = ?", path).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{Path: path}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}

	fields, err := decodeBody(body)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: path, Exists: true, Fields: fields}, nil
}

func encodeBody(fields Fields) ([]byte, error) {
	body, err := msgpack.Marshal(map[string]any(fields))
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return body, nil
}

// decodeBody restores the JSON shape msgpack loses (integers, typed maps).
func decodeBody(body []byte) (Fields, error) {
	var raw map[string]any
	if err := msgpack.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return Normalize(raw)
}
