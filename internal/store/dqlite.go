package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	"github.com/canonical/go-dqlite/app"

	"github.com/openfabrics/go-opensm/internal/logctx"
	"github.com/openfabrics/go-opensm/internal/revert"
)

// DqliteConfig configures the clustered guid2lid store.
type DqliteConfig struct {
	// Dir is the on-disk directory dqlite uses for its raft log and
	// snapshots.
	Dir string

	// Address is this node's dqlite network address (host:port).
	Address string

	// Cluster lists known peer addresses to join; empty bootstraps a new
	// single-node cluster that others can later join.
	Cluster []string
}

// Dqlite is the clustered guid2lid Store backing: the guid2lid mapping is
// replicated via Raft so that it survives not just a process restart but a
// failover of the node hosting the master SM — the design
// "coming_out_of_standby" case, generalized to a whole node disappearing.
// It embeds SQLite's in-memory view and swaps only the underlying *sql.DB,
// following the same schema and Load/Store semantics.
type Dqlite struct {
	*SQLite
	app *app.App
}

// OpenDqlite bootstraps (or joins) a dqlite cluster and opens the guid2lid
// database on it.
func OpenDqlite(ctx context.Context, cfg DqliteConfig) (*Dqlite, error) {
	r := revert.New()
	defer r.Fail()

	a, err := app.New(cfg.Dir, app.WithAddress(cfg.Address), app.WithCluster(cfg.Cluster))
	if err != nil {
		return nil, fmt.Errorf("starting dqlite app: %w", err)
	}

	r.Add(func() { a.Close() })

	// Cluster readiness (a leader being elected) is transient by nature;
	// retry with backoff rather than failing the whole store open on a
	// slow election, matching the retry-on-transient
	// idiom.
	err = retry.Retry(func(attempt uint) error {
		readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := a.Ready(readyCtx)
		if err != nil {
			logctx.Warn("dqlite cluster not ready yet, retrying", logctx.Ctx{"attempt": attempt, "err": err})
		}

		return err
	}, strategy.Limit(10), strategy.Backoff(func(attempt uint) time.Duration {
		return time.Duration(attempt) * 500 * time.Millisecond
	}))
	if err != nil {
		return nil, fmt.Errorf("waiting for dqlite cluster readiness: %w", err)
	}

	db, dbRevert, err := openSchema(ctx, a, r)
	if err != nil {
		// openSchema already unwound its clone of this stack (including
		// a.Close) on failure; prevent the outer Reverter from repeating it.
		r.Success()
		return nil, err
	}

	d := &Dqlite{SQLite: &SQLite{db: db, path: "dqlite:" + cfg.Dir}, app: a}
	if err := d.Load(ctx); err != nil {
		dbRevert.Fail()
		r.Success()
		return nil, err
	}

	dbRevert.Success()
	r.Success()
	return d, nil
}

// openSchema opens the replicated guid2lid database and applies its schema.
// It works off a clone of the caller's cleanup stack so a failure here
// unwinds both its own db handle and everything the caller had already
// registered (the dqlite app), while leaving the caller's own Reverter free
// to decide independently whether to keep or unwind its half on return.
func openSchema(ctx context.Context, a *app.App, parent *revert.Reverter) (*sql.DB, *revert.Reverter, error) {
	r := parent.Clone()
	ok := false
	defer func() {
		if !ok {
			r.Fail()
		}
	}()

	db, err := a.Open(ctx, "guid2lid")
	if err != nil {
		return nil, nil, fmt.Errorf("opening clustered guid2lid database: %w", err)
	}

	r.Add(func() { db.Close() })

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, nil, fmt.Errorf("creating guid2lid schema on dqlite: %w", err)
	}

	ok = true
	return db, r, nil
}

// Handover relinquishes this node's raft leadership before a graceful
// shutdown, so a standby can take over as master without an election
// timeout — the concrete mechanism behind the design's "coming_out_of_standby".
func (d *Dqlite) Handover(ctx context.Context) error {
	return d.app.Handover(ctx)
}

// Close implements Store, stopping the dqlite app after closing the
// *sql.DB handle.
func (d *Dqlite) Close() error {
	var errs []error
	if err := d.SQLite.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := d.app.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("closing dqlite store: %v", errs)
	}

	return nil
}
