package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/auditor/pkg/cli"
	"mercator-hq/auditor/pkg/retention"
)

var pruneFlags struct {
	days       int
	archiveDir string
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished jobs older than the retention period",
	Long: `Delete COMPLETED and FAILED jobs, with their results, whose end time is
older than retention.retention_days. With retention.archive_dir (or
--archive-dir) the jobs are first written to a JSON-lines archive.

"auditor serve" runs the same pruning on retention.schedule when
retention.enabled is set; this command runs it once, for example from an
external scheduler.`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneFlags.days, "days", 0, "override retention.retention_days")
	pruneCmd.Flags().StringVar(&pruneFlags.archiveDir, "archive-dir", "", "override retention.archive_dir")
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	applyRunOverrides(cfg)

	rc := cfg.Retention.Config
	if pruneFlags.days > 0 {
		rc.RetentionDays = pruneFlags.days
	}
	if pruneFlags.archiveDir != "" {
		rc.ArchiveDir = pruneFlags.archiveDir
	}

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("prune", err)
	}
	defer a.close(context.Background())

	deleted, err := retention.NewPruner(a.store, rc, a.logger).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d jobs older than %d days\n", deleted, rc.RetentionDays)
	return nil
}
