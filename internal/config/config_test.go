package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfabrics/go-opensm/internal/config"
)

func TestDefaultMatchesDocumentedBaseline(t *testing.T) {
	opts := config.Default()

	require.Equal(t, uint8(0), opts.LMC)
	require.Equal(t, uint16(0xBFFF), opts.MaxUnicastLID)
	require.Equal(t, "sqlite", opts.StoreDriver)
}

func TestLoadFileOverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opensmd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lmc: 2\nstore_driver: dqlite\n"), 0o600))

	opts, err := config.LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, uint8(2), opts.LMC)
	require.Equal(t, "dqlite", opts.StoreDriver)
	// Fields absent from the file keep Default()'s values.
	require.Equal(t, uint16(0xBFFF), opts.MaxUnicastLID)
}

func TestApplyOverridesIsNoopWhenEmpty(t *testing.T) {
	opts, err := config.ApplyOverrides(config.Default(), nil)
	require.NoError(t, err)
	require.Equal(t, config.Default(), opts)
}

func TestApplyOverridesCoercesFlagValuesOntoOptions(t *testing.T) {
	opts, err := config.ApplyOverrides(config.Default(), map[string]any{
		"lmc":                     uint8(3),
		"max_unicast_lid":         uint16(0xFF),
		"reassign_lids":           true,
		"sm_port_guid":            uint64(0xABCD),
		"store_driver":            "dqlite",
		"resync_interval_seconds": 5,
	})
	require.NoError(t, err)

	require.Equal(t, uint8(3), opts.LMC)
	require.Equal(t, uint16(0xFF), opts.MaxUnicastLID)
	require.True(t, opts.ReassignLIDs)
	require.Equal(t, uint64(0xABCD), opts.SMPortGUID)
	require.Equal(t, "dqlite", opts.StoreDriver)
	require.Equal(t, 5, opts.ResyncIntervalSeconds)
}
