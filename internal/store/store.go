// Package store adapts the external guid2lid persistent-database domain
// into a small typed Go interface. The database engine
// itself — schema storage, replication, WAL — is an external collaborator;
// this package only supplies a thin typed view plus two concrete, swappable
// backings (single-node sqlite and clustered dqlite).
package store

import (
	"context"
	"errors"

	"github.com/openfabrics/go-opensm/internal/topology"
)

// ErrNotFound is returned by Get when the GUID has no persisted entry.
var ErrNotFound = errors.New("store: guid has no persistent lid entry")

// Entry is one row of the guid2lid mapping: an inclusive LID range owned by
// a GUID.
type Entry struct {
	GUID topology.GUID
	Min  uint16
	Max  uint16
}

// Store is the guid2lid domain's operations, as named in the design:
// get/set/delete/iterate/clear/load/store.
type Store interface {
	// Get returns the persisted range for guid, or ErrNotFound.
	Get(ctx context.Context, guid topology.GUID) (min, max uint16, err error)

	// Set persists (or overwrites) guid's range.
	Set(ctx context.Context, guid topology.GUID, min, max uint16) error

	// Delete removes guid's entry, if any. Deleting an absent entry is not
	// an error.
	Delete(ctx context.Context, guid topology.GUID) error

	// IterateGUIDs calls fn once per currently-persisted GUID, in
	// unspecified order. Iteration stops and returns fn's error if fn
	// returns non-nil.
	IterateGUIDs(ctx context.Context, fn func(topology.GUID) error) error

	// Clear removes every entry from the in-memory view. It does not by
	// itself touch on-disk state until Store is called.
	Clear(ctx context.Context) error

	// Load discards the in-memory view and repopulates it from the backing
	// engine.
	Load(ctx context.Context) error

	// Store flushes the in-memory view to the backing engine. A
	// Store-then-Load round trip reproduces every prior Set exactly.
	Store(ctx context.Context) error

	// Close releases any resources (connections, cluster membership) held
	// by the store.
	Close() error
}

// All returns every persisted entry; cmd/opensmd's show subcommand uses it.
func All(ctx context.Context, s Store) ([]Entry, error) {
	var entries []Entry

	err := s.IterateGUIDs(ctx, func(g topology.GUID) error {
		min, max, err := s.Get(ctx, g)
		if err != nil {
			return err
		}

		entries = append(entries, Entry{GUID: g, Min: min, Max: max})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
