// Command clinic-worker runs the clinic's background coordination: medication
// reminders, missed-dose alerts, the daily summary and survey sync.
//
// Usage:
//
//	clinic-worker run
//	clinic-worker tick
//	clinic-worker sync-retry --addr http://localhost:8090
//	clinic-worker migrate
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-worker/internal/common/config"
	apphttp "clinic-worker/internal/common/http"
	"clinic-worker/internal/ops"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "clinic-worker",
		Short:         "Clinic background coordination worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (defaults to ./configs/config.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(tickCmd())
	root.AddCommand(syncRetryCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// withApp loads config, builds the app and hands it to fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	zapLog := newZapLogger(cfg.Logging)
	defer zapLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// --------------------------------------------------------------------------
// run
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reminder scheduler, the sync retry job and the ops API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	a.zapLog.Info("Starting clinic worker...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	if cfg.Scheduler.Enabled {
		go func() {
			if err := a.scheduler.Run(ctx); err != nil {
				a.zapLog.Error("scheduler stopped", zap.Error(err))
			}
		}()
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Sync.RetrySchedule, func() {
		sent, err := a.queue.RetryPending(ctx)
		if err != nil {
			a.zapLog.Warn("Scheduled sync retry interrupted", zap.Error(err))
			return
		}
		if sent > 0 {
			a.zapLog.Info("Scheduled sync retry finished", zap.Int("sent", sent))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sync retry schedule %q: %w", cfg.Sync.RetrySchedule, err)
	}
	c.Start()

	srv := ops.NewServer(cfg.Server.Address, ops.NewRouter(a.opsDeps()))
	serverErr := make(chan error, 1)
	go func() {
		a.zapLog.Info("Ops API listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.zapLog.Info("Shutdown signal received, stopping...")
	case err = <-serverErr:
		a.zapLog.Error("ops server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	a.scheduler.Stop()
	<-c.Stop().Done()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		a.zapLog.Warn("ops server shutdown incomplete", zap.Error(shutdownErr))
	}
	if waitErr := a.queue.Wait(shutdownCtx); waitErr != nil {
		a.zapLog.Warn("in-flight sync submissions abandoned", zap.Error(waitErr))
	}
	if n := a.queue.PendingCount(); n > 0 {
		a.zapLog.Warn("Pending sync items dropped on shutdown", zap.Int("count", n))
	}

	a.zapLog.Info("Clinic worker stopped")
	return err
}

// --------------------------------------------------------------------------
// tick
// --------------------------------------------------------------------------

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run the reminder, missed-dose and summary checks once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				start := time.Now()
				err := a.scheduler.Tick(ctx)
				a.zapLog.Info("Tick finished", zap.Duration("duration", time.Since(start)), zap.Error(err))
				return err
			})
		},
	}
}

// --------------------------------------------------------------------------
// sync-retry
// --------------------------------------------------------------------------

// The pending queue lives in the running worker, so this asks it over the ops API.
func syncRetryCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync-retry",
		Short: "Ask a running worker to retry its pending sync items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := apphttp.NewClient(timeout).PostJSON(ctx, addr+"/sync/retry", nil, struct{}{})
			if err != nil {
				return fmt.Errorf("sync retry request failed: %w", err)
			}
			if !resp.OK() {
				return fmt.Errorf("sync retry rejected: status %d: %s", resp.StatusCode, resp.Body)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8090", "ops API base URL of the running worker")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
	return cmd
}

// --------------------------------------------------------------------------
// migrate
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables and indexes the worker reads and writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			zapLog := newZapLogger(cfg.Logging)
			defer zapLog.Sync()

			a := &app{cfg: cfg, zapLog: zapLog}
			if err := connectStores(cmd.Context(), a); err != nil {
				return err
			}
			defer a.Close()

			if err := a.pg.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			zapLog.Info("PostgreSQL schema ready")

			if a.es != nil && cfg.Sync.Backend == config.SyncBackendElasticsearch {
				if err := a.es.EnsureIndex(cmd.Context(), cfg.Sync.Elasticsearch.Index); err != nil {
					return err
				}
				zapLog.Info("Elasticsearch index ready", zap.String("index", cfg.Sync.Elasticsearch.Index))
			}
			return nil
		},
	}
}
