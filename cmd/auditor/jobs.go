package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/cli"
	"mercator-hq/auditor/pkg/store"
)

var jobsFlags struct {
	status string
	limit  int
	offset int
	output string
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect stored audit jobs",
	Long: `Inspect audit jobs in the configured storage backend.

The memory backend keeps nothing between invocations; configure
storage.driver as sqlite or postgres to inspect jobs run earlier or by
"auditor serve".`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  listJobs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show JOB_ID",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  showJob,
}

var jobsResultsCmd = &cobra.Command{
	Use:   "results JOB_ID",
	Short: "Print the audit results of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  jobResults,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsResultsCmd)

	jobsCmd.PersistentFlags().StringVarP(&jobsFlags.output, "output", "o", "text", "output format: text, json, csv")
	jobsListCmd.Flags().StringVar(&jobsFlags.status, "status", "", "filter by status: CREATED, RUNNING, COMPLETED, FAILED")
	jobsListCmd.Flags().IntVar(&jobsFlags.limit, "limit", 50, "maximum jobs to list")
	jobsListCmd.Flags().IntVar(&jobsFlags.offset, "offset", 0, "jobs to skip")
}

// withApp builds the app for a read-only jobs command and prints data
// returned by fn.
func withApp(cmd *cobra.Command, name string, fn func(ctx context.Context, a *app) (any, error)) error {
	ctx := commandContext(cmd)
	format, err := cli.ParseOutputFormat(jobsFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	applyRunOverrides(cfg)
	if cfg.Storage.Driver == store.DriverMemory {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: storage.driver is memory, no jobs persist between commands")
	}

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError(name, err)
	}
	defer a.close(context.Background())

	data, err := fn(ctx, a)
	if err != nil {
		return cli.NewCommandError(name, err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), data)
}

func listJobs(cmd *cobra.Command, args []string) error {
	return withApp(cmd, "jobs list", func(ctx context.Context, a *app) (any, error) {
		jobs, err := a.orch.ListJobs(ctx, store.JobQuery{
			Status: audit.JobStatus(jobsFlags.status),
			Limit:  jobsFlags.limit,
			Offset: jobsFlags.offset,
		})
		return cli.JobsView(jobs), err
	})
}

func showJob(cmd *cobra.Command, args []string) error {
	return withApp(cmd, "jobs show", func(ctx context.Context, a *app) (any, error) {
		job, err := a.orch.GetJobStatus(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return cli.JobsView{job}, nil
	})
}

func jobResults(cmd *cobra.Command, args []string) error {
	return withApp(cmd, "jobs results", func(ctx context.Context, a *app) (any, error) {
		results, err := a.orch.GetJobResults(ctx, args[0])
		return cli.ResultsView(results), err
	})
}
