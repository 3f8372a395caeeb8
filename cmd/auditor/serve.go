package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/auditor/pkg/cli"
	"mercator-hq/auditor/pkg/config"
	"mercator-hq/auditor/pkg/limits"
	"mercator-hq/auditor/pkg/retention"
	"mercator-hq/auditor/pkg/rules"
	"mercator-hq/auditor/pkg/rules/gitsync"
	"mercator-hq/auditor/pkg/security/auth"
	"mercator-hq/auditor/pkg/server"
	"mercator-hq/auditor/pkg/telemetry/health"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the audit HTTP API",
	Long: `Start the audit HTTP API with the specified configuration.

The server accepts audit jobs over HTTP, runs asynchronous jobs on the
execution gate and stores results in the configured backend. It also
serves /health, /ready, /version and Prometheus metrics.

When enabled in the configuration, serve also:
  - reloads rule sets when files in rules.dir change
  - pulls rule sets from rules.git and reloads on new commits
  - prunes finished jobs on the retention schedule
  - hot-reloads the TLS certificate

Examples:
  # Start with default config
  auditor serve

  # Start with custom config
  auditor serve --config /etc/auditor/config.yaml

  # Override listen address
  auditor serve --listen 0.0.0.0:9090

  # Validate config without starting server
  auditor serve --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override server.address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	w := cmd.OutOrStdout()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.Address = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
		if err := config.Validate(cfg); err != nil {
			return cli.NewConfigError("log-level", err.Error())
		}
	}
	if serveFlags.dryRun {
		fmt.Fprintln(w, "✓ Configuration valid")
		return nil
	}

	a, err := newApp(ctx, cfg, appOptions{reports: true})
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer a.close(context.Background())
	logger := a.logger

	if err := a.rules.Reload(); err != nil {
		logger.Warn("rule directory not readable, rule sets load on first request", "dir", cfg.Rules.Dir, "error", err)
	}
	fmt.Fprintf(w, "✓ Rule sets loaded from %s (%d)\n", cfg.Rules.Dir, len(a.rules.RuleSets()))
	if cfg.Rules.Watch {
		watcher, err := rules.NewWatcher(cfg.Rules.Dir, cfg.Rules.DebounceInterval, logger)
		if err != nil {
			return cli.NewCommandError("serve", err)
		}
		go func() {
			if err := a.rules.Watch(ctx, watcher); err != nil {
				logger.Error("rule watcher stopped", "error", err)
			}
		}()
		fmt.Fprintln(w, "✓ Watching rule files for changes")
	}
	if a.git != nil {
		go a.git.Run(ctx, func(res *gitsync.SyncResult) {
			logger.Info("rule repository changed, reloading", "commit", res.ToSHA, "files", res.ChangedRuleFiles)
			if err := a.rules.Reload(); err != nil {
				logger.Warn("rule reload after sync reported errors", "error", err)
			}
		})
		if head, err := a.git.Head(); err == nil {
			fmt.Fprintf(w, "✓ Rule repository %s @ %.8s\n", cfg.Rules.Git.Repository, head.SHA)
		}
	}

	if cfg.Retention.Enabled {
		scheduler := retention.NewScheduler(retention.NewPruner(a.store, cfg.Retention.Config, logger))
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer scheduler.Stop()
		if next := scheduler.NextRun(); next != nil {
			fmt.Fprintf(w, "✓ Retention: %d days, next pruning %s\n", cfg.Retention.RetentionDays, next.Format(time.RFC3339))
		}
	}

	checker := health.New(5 * time.Second)
	checker.RegisterCheck("store", health.StoreCheck(a.store))
	checker.RegisterCheck("gate", health.BreakerCheck(a.gate))
	checker.RegisterCheck("rules", health.ErrorCheck(func() error {
		if len(a.rules.RuleSets()) == 0 {
			return errors.New("no rule sets loaded")
		}
		return nil
	}))

	deps := server.Deps{
		Jobs:      a.orch,
		Health:    checker,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
		Logger:    logger,
	}
	if len(cfg.Security.APIKeys) > 0 {
		deps.Auth = auth.NewValidator(cfg.Security.APIKeys)
	}
	if cfg.Server.RateLimit.Enabled {
		deps.Limiter = limits.New(cfg.Server.RateLimit)
		fmt.Fprintf(w, "✓ Job submissions limited to %d per minute per caller\n", cfg.Server.RateLimit.JobsPerMinute)
	}

	metricsCfg := cfg.Telemetry.Metrics
	if metricsCfg.Enabled {
		if metricsCfg.Address == "" || metricsCfg.Address == cfg.Server.Address {
			deps.Metrics = a.metrics.Handler()
			deps.MetricsPath = metricsCfg.Path
		} else {
			go serveMetrics(ctx, metricsCfg.Address, metricsCfg.Path, a.metrics.Handler(), a)
		}
	}

	srv, err := server.New(cfg.Server, deps)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}

	fmt.Fprintf(w, "✓ Server listening on %s\n", cfg.Server.Address)
	fmt.Fprintln(w, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Fprintln(w, "✓ Server stopped")
	return nil
}

// serveMetrics exposes the metrics handler on its own listener until ctx is
// done.
func serveMetrics(ctx context.Context, addr, path string, h http.Handler, a *app) {
	mux := http.NewServeMux()
	mux.Handle("GET "+path, h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.logger.Info("serving metrics", "address", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("metrics server failed", "error", err)
	}
}
