package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/openfabrics/go-opensm/internal/logctx"
	"github.com/openfabrics/go-opensm/internal/metrics"
	"github.com/openfabrics/go-opensm/internal/task"
)

type cmdRun struct {
	global *cmdGlobal

	flagFixture string
}

func (c *cmdRun) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the LID manager continuously, resyncing on an interval",
		RunE:  c.run,
	}
	cmd.Flags().StringVarP(&c.flagFixture, "fixture", "f", "", "Path to a discovery fixture YAML file")

	return cmd
}

func (c *cmdRun) run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := loadConfig(c.global)
	if err != nil {
		return err
	}

	o, _, err := buildOrchestrator(ctx, opts, c.flagFixture)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	o.SetMetrics(metrics.New(reg, func() float64 { return float64(o.PendingSubmissions()) }))

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux}

		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logctx.Error("metrics server stopped", logctx.Ctx{"err": err})
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()
	}

	group := task.NewGroup()

	group.Add(func(taskCtx context.Context) {
		if _, err := o.ProcessSM(taskCtx); err != nil {
			logctx.Error("process_sm failed", logctx.Ctx{"err": err})
		}
	}, task.Every(5*time.Second))

	subnetTaskID := group.Add(func(taskCtx context.Context) {
		if _, err := o.ProcessSubnet(taskCtx); err != nil {
			logctx.Error("process_subnet failed", logctx.Ctx{"err": err})
		}
	}, task.Every(time.Duration(opts.ResyncIntervalSeconds)*time.Second))

	group.Start(ctx)
	defer group.Stop(10 * time.Second) //nolint:errcheck

	var cronRunner *cron.Cron
	if opts.FullResyncCron != "" {
		cronRunner = cron.New()
		if _, err := cronRunner.AddFunc(opts.FullResyncCron, func() {
			logctx.Info("cron-triggered full resync", logctx.Ctx{"schedule": opts.FullResyncCron})
			group.Reset(subnetTaskID)
		}); err != nil {
			return fmt.Errorf("parsing full_resync_cron %q: %w", opts.FullResyncCron, err)
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	logctx.Info("opensmd running", logctx.Ctx{"resync_interval_seconds": opts.ResyncIntervalSeconds})

	<-ctx.Done()
	logctx.Info("opensmd shutting down", logctx.Ctx{})

	return nil
}
