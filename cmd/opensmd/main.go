// Command opensmd runs the LID Manager as a standalone daemon: it drives
// process_sm()/process_subnet() sweeps against a discovery fixture file (a
// stand-in for the external subnet-discovery collaborator) and a guid2lid
// persistent store, either once (sweep) or continuously (run), and can
// print the resulting port_lid_tbl/free-range state (show).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openfabrics/go-opensm/internal/logctx"
)

type cmdGlobal struct {
	cmd *cobra.Command

	flagConfig  string
	flagVerbose bool
	flagDebug   bool

	// Override flags layered on top of the YAML config via
	// config.ApplyOverrides. Left at their zero value, a flag is
	// indistinguishable from "not set"; only flags the user actually passed
	// (cmd.Flags().Changed) are forwarded as overrides.
	flagLMC                   uint8
	flagMaxUnicastLID         uint16
	flagReassignLIDs          bool
	flagSMPortGUID            uint64
	flagStoreDriver           string
	flagStorePath             string
	flagResyncIntervalSeconds int
}

// overrides collects the override flags the user actually passed into a map
// suitable for config.ApplyOverrides, keyed by the same mapstructure tags
// used in the YAML config.
func (g *cmdGlobal) overrides() map[string]any {
	flags := g.cmd.PersistentFlags()
	out := map[string]any{}

	if flags.Changed("lmc") {
		out["lmc"] = g.flagLMC
	}
	if flags.Changed("max-unicast-lid") {
		out["max_unicast_lid"] = g.flagMaxUnicastLID
	}
	if flags.Changed("reassign-lids") {
		out["reassign_lids"] = g.flagReassignLIDs
	}
	if flags.Changed("sm-port-guid") {
		out["sm_port_guid"] = g.flagSMPortGUID
	}
	if flags.Changed("store-driver") {
		out["store_driver"] = g.flagStoreDriver
	}
	if flags.Changed("store-path") {
		out["store_path"] = g.flagStorePath
	}
	if flags.Changed("resync-interval-seconds") {
		out["resync_interval_seconds"] = g.flagResyncIntervalSeconds
	}

	return out
}

func (g *cmdGlobal) preRun(*cobra.Command, []string) error {
	switch {
	case g.flagDebug:
		logctx.SetLevel(logrus.DebugLevel)
	case g.flagVerbose:
		logctx.SetLevel(logrus.InfoLevel)
	default:
		logctx.SetLevel(logrus.WarnLevel)
	}

	return nil
}

func main() {
	app := &cobra.Command{
		Use:   "opensmd",
		Short: "InfiniBand subnet manager LID allocation daemon",
	}
	app.SilenceUsage = true
	app.SilenceErrors = true

	global := cmdGlobal{cmd: app}
	app.PersistentFlags().StringVarP(&global.flagConfig, "config", "c", "", "Path to the YAML config file")
	app.PersistentFlags().BoolVarP(&global.flagVerbose, "verbose", "v", false, "Show informational messages")
	app.PersistentFlags().BoolVar(&global.flagDebug, "debug", false, "Show debug messages")

	app.PersistentFlags().Uint8Var(&global.flagLMC, "lmc", 0, "Override lmc from the config file")
	app.PersistentFlags().Uint16Var(&global.flagMaxUnicastLID, "max-unicast-lid", 0, "Override max_unicast_lid from the config file")
	app.PersistentFlags().BoolVar(&global.flagReassignLIDs, "reassign-lids", false, "Override reassign_lids from the config file")
	app.PersistentFlags().Uint64Var(&global.flagSMPortGUID, "sm-port-guid", 0, "Override sm_port_guid from the config file")
	app.PersistentFlags().StringVar(&global.flagStoreDriver, "store-driver", "", "Override store_driver from the config file")
	app.PersistentFlags().StringVar(&global.flagStorePath, "store-path", "", "Override store_path from the config file")
	app.PersistentFlags().IntVar(&global.flagResyncIntervalSeconds, "resync-interval-seconds", 0, "Override resync_interval_seconds from the config file")

	app.PersistentPreRunE = global.preRun

	runCmd := cmdRun{global: &global}
	app.AddCommand(runCmd.command())

	sweepCmd := cmdSweep{global: &global}
	app.AddCommand(sweepCmd.command())

	showCmd := cmdShow{global: &global}
	app.AddCommand(showCmd.command())

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
