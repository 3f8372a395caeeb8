/*
Package cli holds the helpers shared by the auditor commands: error types
with exit codes, output formatters for jobs and results, a job progress
reporter and signal handling.

Output Formatting:

Jobs and results render as aligned text tables with colored statuses, as
JSON, or as CSV:

	f := cli.NewFormatter(cli.FormatText)
	if err := f.FormatTo(os.Stdout, cli.ResultsView(results)); err != nil {
		return err
	}

Progress Reporting:

	p := cli.NewProgressReporter(os.Stderr)
	job, err := cli.WatchJob(ctx, orch.GetJobStatus, job.ID, time.Second, p)

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
