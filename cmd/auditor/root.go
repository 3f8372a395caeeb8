package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/auditor/pkg/cli"
	"mercator-hq/auditor/pkg/config"
	"mercator-hq/auditor/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "auditor",
	Short: "Auditor - document compliance audits against versioned rule sets",
	Long: `Auditor checks documents against compliance rule sets.

Each document is parsed and split into chunks, every active rule of the
selected rule set is evaluated (keywords, phrases, regular expressions,
exclusions, combinations, format checks and semantic similarity), and the
findings are stored as audit results with evidence and guidance.

Jobs run from the command line or through the HTTP API started by
"auditor serve".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cli.ColorStatus("FAILED")+": "+err.Error())
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the config file, applies AUDITOR_* overrides and
// resolves secret references.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(ctx, cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFileName(), err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

func cfgFileName() string {
	if cfgFile == "" {
		return "defaults"
	}
	return cfgFile
}

// commandContext returns the command's context, or Background when the
// command is invoked directly in tests.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// stderrLogger logs warnings for commands that do not build the full app.
func stderrLogger(cmd *cobra.Command) *slog.Logger {
	l, err := logging.New(logging.Config{Level: "warn", Format: "text", Writer: cmd.ErrOrStderr()})
	if err != nil {
		return slog.Default()
	}
	return l
}
