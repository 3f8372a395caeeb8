package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/cli"
	"mercator-hq/auditor/pkg/config"
)

var runFlags struct {
	ruleSet         string
	name            string
	rulesDir        string
	docsRoot        string
	report          string
	output          string
	async           bool
	failOnViolation bool
}

var runCmd = &cobra.Command{
	Use:   "run [flags] DOCUMENT...",
	Short: "Audit documents against a rule set",
	Long: `Audit documents against a rule set and print the results.

Document IDs are paths relative to documents.root (or --docs-root). Plain
text, Markdown, DOCX and XLSX documents are supported.

With --async the job runs on the execution gate and progress is shown
while it runs. The job is stored in the configured storage backend, so
"auditor jobs" can inspect it later when storage is persistent.

Exit codes:
  0  job completed
  4  job failed
  5  job completed with FAILED results and --fail-on-violation is set

Examples:
  # Audit with the rule set "insurance" from ./rules
  auditor run --rule-set insurance policy.docx terms.txt

  # Export a CSV report and print JSON results
  auditor run --rule-set insurance --report csv --output json policy.docx

  # Use as a CI gate
  auditor run --rule-set style --fail-on-violation docs/*.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.ruleSet, "rule-set", "r", "", "rule set ID (required)")
	runCmd.Flags().StringVarP(&runFlags.name, "name", "n", "", "job name")
	runCmd.Flags().StringVar(&runFlags.rulesDir, "rules-dir", "", "override rules.dir")
	runCmd.Flags().StringVar(&runFlags.docsRoot, "docs-root", "", "override documents.root")
	runCmd.Flags().StringVar(&runFlags.report, "report", "", "export a report: json, csv, xlsx")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "text", "output format: text, json, csv")
	runCmd.Flags().BoolVar(&runFlags.async, "async", false, "run on the execution gate and show progress")
	runCmd.Flags().BoolVar(&runFlags.failOnViolation, "fail-on-violation", false, "exit 5 when any result is FAILED")
	_ = runCmd.MarkFlagRequired("rule-set")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	format, err := cli.ParseOutputFormat(runFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	applyRunOverrides(cfg)

	a, err := newApp(ctx, cfg, appOptions{reports: runFlags.report != "" || cfg.Jobs.ReportFormat != ""})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.close(context.Background())

	name := runFlags.name
	if name == "" {
		name = fmt.Sprintf("cli-%s", time.Now().Format("20060102-150405"))
	}
	req := audit.JobRequest{
		Name:         name,
		RuleSetID:    runFlags.ruleSet,
		DocumentIDs:  args,
		Async:        runFlags.async,
		ReportFormat: runFlags.report,
	}

	job, err := a.orch.CreateJob(ctx, req)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	if runFlags.async {
		job, err = cli.WatchJob(ctx, a.orch.GetJobStatus, job.ID, 250*time.Millisecond, cli.NewProgressReporter(cmd.ErrOrStderr()))
		if err != nil {
			return cli.NewCommandError("run", err)
		}
	}

	results, err := a.orch.GetJobResults(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	if err := printRun(cmd.OutOrStdout(), format, job, results); err != nil {
		return err
	}
	return runOutcome(job, results, runFlags.failOnViolation)
}

func applyRunOverrides(cfg *config.Config) {
	if runFlags.rulesDir != "" {
		cfg.Rules.Dir = runFlags.rulesDir
	}
	if runFlags.docsRoot != "" {
		cfg.Documents.Root = runFlags.docsRoot
	}
	// Human output goes to stdout; keep logs on stderr and quiet.
	cfg.Telemetry.Logging.Writer = os.Stderr
	if !verbose && cfg.Telemetry.Logging.Level == config.DefaultLogLevel {
		cfg.Telemetry.Logging.Level = "warn"
	}
}

// runOutcome maps a finished job to the command error that sets the exit
// code.
func runOutcome(job *audit.Job, results []audit.AuditResult, failOnViolation bool) error {
	if job.Status == audit.JobFailed {
		return &cli.CommandError{Command: "run", Err: fmt.Errorf("job %s failed: %s", job.ID, job.ErrorMessage), Code: cli.ExitJobFailed}
	}
	if !failOnViolation {
		return nil
	}
	for _, r := range results {
		if r.Status == audit.StatusFailed {
			return &cli.CommandError{Command: "run", Err: fmt.Errorf("job %s has failed rules", job.ID), Code: cli.ExitAuditFailure}
		}
	}
	return nil
}

type runOutput struct {
	Job     *audit.Job          `json:"job"`
	Results []audit.AuditResult `json:"results"`
}

func printRun(w io.Writer, format cli.OutputFormat, job *audit.Job, results []audit.AuditResult) error {
	switch format {
	case cli.FormatJSON:
		return cli.NewFormatter(format).FormatTo(w, runOutput{Job: job, Results: results})
	case cli.FormatCSV:
		return cli.NewFormatter(format).FormatTo(w, cli.ResultsView(results))
	}

	fmt.Fprintf(w, "Job %s (%s) %s\n", job.ID, job.Name, cli.ColorStatus(string(job.Status)))
	fmt.Fprintf(w, "Rule set: %s", job.RuleSetID)
	if job.RuleSetVersion != "" {
		fmt.Fprintf(w, " @ %s", job.RuleSetVersion)
	}
	fmt.Fprintf(w, "\nDocuments: %d total, %d completed, %d failed\n", job.TotalTasks, job.CompletedTasks, job.FailedTasks)
	if job.ErrorMessage != "" {
		fmt.Fprintf(w, "Error: %s\n", job.ErrorMessage)
	}
	fmt.Fprintln(w)
	if len(results) > 0 {
		if err := cli.NewFormatter(cli.FormatText).FormatTo(w, cli.ResultsView(results)); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if s := job.Summary; s != nil {
		fmt.Fprintf(w, "Rules: %d total, %s, %s, %s (pass rate %.1f%%)\n",
			s.TotalRules,
			cli.ColorStatus(string(audit.StatusPassed))+fmt.Sprintf(" %d", s.PassedRules),
			cli.ColorStatus(string(audit.StatusWarning))+fmt.Sprintf(" %d", s.WarningRules),
			cli.ColorStatus(string(audit.StatusFailed))+fmt.Sprintf(" %d", s.FailedRules),
			s.PassRate,
		)
	}
	return nil
}
