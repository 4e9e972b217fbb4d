package main

import (
	"context"
	"fmt"

	"github.com/openfabrics/go-opensm/internal/config"
	"github.com/openfabrics/go-opensm/internal/orchestrator"
	"github.com/openfabrics/go-opensm/internal/store"
	"github.com/openfabrics/go-opensm/internal/topology"
	"github.com/openfabrics/go-opensm/internal/transport"
)

// loadConfig reads global.flagConfig if non-empty (or falls back to
// config.Default()), then layers any override flags the user passed on the
// command line on top via config.ApplyOverrides.
func loadConfig(global *cmdGlobal) (config.Options, error) {
	opts := config.Default()

	if global.flagConfig != "" {
		var err error
		opts, err = config.LoadFile(global.flagConfig)
		if err != nil {
			return opts, err
		}
	}

	return config.ApplyOverrides(opts, global.overrides())
}

// openStore builds the guid2lid Store backing named by opts.StoreDriver.
func openStore(ctx context.Context, opts config.Options) (store.Store, error) {
	switch opts.StoreDriver {
	case "", "sqlite":
		return store.OpenSQLite(opts.StorePath)
	case "dqlite":
		return store.OpenDqlite(ctx, store.DqliteConfig{Dir: opts.StorePath})
	default:
		return nil, fmt.Errorf("unknown store_driver %q", opts.StoreDriver)
	}
}

// buildOrchestrator wires the discovery fixture, store, and a loopback
// transport into a ready-to-run Orchestrator.
func buildOrchestrator(ctx context.Context, opts config.Options, fixturePath string) (*orchestrator.Orchestrator, topology.GUID, error) {
	var (
		discovery *topology.Static
		smGUID    topology.GUID
		err       error
	)

	if fixturePath != "" {
		discovery, smGUID, err = topology.LoadFixture(fixturePath)
		if err != nil {
			return nil, 0, err
		}
	} else {
		discovery = topology.NewStatic()
	}

	if opts.SMPortGUID != 0 {
		smGUID = topology.GUID(opts.SMPortGUID)
	} else if smGUID != 0 {
		opts.SMPortGUID = uint64(smGUID)
	}

	st, err := openStore(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("opening guid2lid store: %w", err)
	}

	o := orchestrator.New(opts, discovery, st, &transport.Loopback{})

	return o, smGUID, nil
}
