package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/openfabrics/go-opensm/internal/logctx"
	"github.com/openfabrics/go-opensm/internal/topology"
)

const schema = `
CREATE TABLE IF NOT EXISTS guid2lid (
	guid    INTEGER PRIMARY KEY,
	min_lid INTEGER NOT NULL,
	max_lid INTEGER NOT NULL
)`

// SQLite is the default, single-node guid2lid Store backing, using
// mattn/go-sqlite3. The manager's working set lives in an in-memory map; Load and
// Store synchronize it with the on-disk table, matching the design
// "coming_out_of_standby" reload semantics.
type SQLite struct {
	db   *sql.DB
	path string

	mu      sync.RWMutex
	entries map[topology.GUID]Entry
}

// OpenSQLite opens (creating if necessary) a sqlite3-backed guid2lid store
// at path. An empty path opens an ephemeral in-memory database, useful for
// tests and for a fresh first-time-master sweep with no persistence desired.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite guid2lid store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating guid2lid schema: %w", err)
	}

	s := &SQLite{db: db, path: path, entries: make(map[topology.GUID]Entry)}
	if err := s.Load(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Get implements Store.
func (s *SQLite) Get(_ context.Context, guid topology.GUID) (uint16, uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[guid]
	if !ok {
		return 0, 0, ErrNotFound
	}

	return e.Min, e.Max, nil
}

// Set implements Store.
func (s *SQLite) Set(_ context.Context, guid topology.GUID, min, max uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[guid] = Entry{GUID: guid, Min: min, Max: max}
	return nil
}

// Delete implements Store.
func (s *SQLite) Delete(_ context.Context, guid topology.GUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, guid)
	return nil
}

// IterateGUIDs implements Store.
func (s *SQLite) IterateGUIDs(_ context.Context, fn func(topology.GUID) error) error {
	s.mu.RLock()
	guids := make([]topology.GUID, 0, len(s.entries))
	for g := range s.entries {
		guids = append(guids, g)
	}
	s.mu.RUnlock()

	for _, g := range guids {
		if err := fn(g); err != nil {
			return err
		}
	}

	return nil
}

// Clear implements Store.
func (s *SQLite) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[topology.GUID]Entry)
	return nil
}

// Load implements Store: it discards the in-memory view and repopulates it
// from the guid2lid table.
func (s *SQLite) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT guid, min_lid, max_lid FROM guid2lid")
	if err != nil {
		return fmt.Errorf("loading guid2lid table: %w", err)
	}
	defer rows.Close()

	loaded := make(map[topology.GUID]Entry)
	for rows.Next() {
		var guid uint64
		var min, max uint16
		if err := rows.Scan(&guid, &min, &max); err != nil {
			return fmt.Errorf("scanning guid2lid row: %w", err)
		}

		loaded[topology.GUID(guid)] = Entry{GUID: topology.GUID(guid), Min: min, Max: max}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating guid2lid rows: %w", err)
	}

	s.mu.Lock()
	s.entries = loaded
	s.mu.Unlock()

	return nil
}

// Store implements Store: it flushes the in-memory view to the guid2lid
// table, replacing its prior contents atomically.
func (s *SQLite) Store(ctx context.Context) error {
	s.mu.RLock()
	snapshot := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		snapshot = append(snapshot, e)
	}
	s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting guid2lid flush transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM guid2lid"); err != nil {
		return fmt.Errorf("clearing guid2lid table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO guid2lid (guid, min_lid, max_lid) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing guid2lid insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range snapshot {
		if _, err := stmt.ExecContext(ctx, uint64(e.GUID), e.Min, e.Max); err != nil {
			return fmt.Errorf("persisting guid2lid entry for %s: %w", e.GUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing guid2lid flush: %w", err)
	}

	logctx.Debug("flushed guid2lid store", logctx.Ctx{"entries": len(snapshot), "path": s.path})
	return nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}
