package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/cli"
	"mercator-hq/auditor/pkg/rules"
	"mercator-hq/auditor/pkg/rules/gitsync"
)

var rulesFlags struct {
	dir    string
	output string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule sets",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Validate rule set files",
	Long: `Validate rule set files against the rule set schema and compile every
rule's parameters.

Examples:
  auditor rules validate rules/insurance.yaml
  auditor rules validate rules/*.yaml rules/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateRules,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rule sets in the rules directory",
	RunE:  listRules,
}

var rulesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Clone or pull the rule repository configured in rules.git",
	Long: `Clone or pull the rule repository configured in rules.git and load the
rule sets it contains.

The checkout is written to rules.git.local_path, which serve and run reuse.`,
	Args: cobra.NoArgs,
	RunE: syncRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd, rulesListCmd, rulesSyncCmd)

	rulesListCmd.Flags().StringVar(&rulesFlags.dir, "dir", "", "rules directory (default: rules.dir)")
	rulesListCmd.Flags().StringVarP(&rulesFlags.output, "output", "o", "text", "output format: text, json, csv")
}

func validateRules(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	invalid := 0
	for _, path := range args {
		rs, err := rules.ValidateFile(path)
		if err != nil {
			invalid++
			fmt.Fprintf(w, "%s %s\n", cli.ColorStatus(string(audit.StatusFailed)), path)
			fmt.Fprintf(w, "    %v\n", err)
			continue
		}
		active := 0
		for _, r := range rs.Rules {
			if r.Active {
				active++
			}
		}
		fmt.Fprintf(w, "%s %s: %s@%s, %d rules (%d active)\n",
			cli.ColorStatus(string(audit.StatusPassed)), path, rs.ID, rs.Version, len(rs.Rules), active)
	}
	if invalid > 0 {
		return cli.NewCommandError("rules validate", fmt.Errorf("%d of %d files invalid", invalid, len(args)))
	}
	return nil
}

// ruleSetsView renders rule set ids and versions.
type ruleSetsView []audit.RuleSet

func (v ruleSetsView) Value() any        { return []audit.RuleSet(v) }
func (v ruleSetsView) Header() []string  { return []string{"ID", "VERSION"} }
func (v ruleSetsView) StatusColumn() int { return -1 }
func (v ruleSetsView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, rs := range v {
		rows = append(rows, []string{rs.ID, rs.Version})
	}
	return rows
}

func listRules(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(rulesFlags.output)
	if err != nil {
		return err
	}
	dir := rulesFlags.dir
	if dir == "" {
		cfg, err := loadConfig(commandContext(cmd))
		if err != nil {
			return err
		}
		dir = cfg.Rules.Dir
	}

	p := rules.NewFileProvider(rules.FileProviderConfig{Dir: dir}, stderrLogger(cmd))
	if err := p.Reload(); err != nil {
		return cli.NewCommandError("rules list", err)
	}
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), ruleSetsView(p.RuleSets())); err != nil {
		return err
	}
	if err := p.LoadErrors(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "some rule files failed to load:\n%v\n", err)
	}
	return nil
}

func syncRules(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if !cfg.Rules.Git.Enabled() {
		return cli.NewConfigError("rules.git.repository", "no rule repository configured")
	}
	logger := stderrLogger(cmd)
	repo, err := gitsync.New(cfg.Rules.Git, logger)
	if err != nil {
		return cli.NewConfigError("rules.git", err.Error())
	}
	res, err := repo.Sync(ctx)
	if err != nil {
		return cli.NewCommandError("rules sync", err)
	}
	head, err := repo.Head()
	if err != nil {
		return cli.NewCommandError("rules sync", err)
	}

	w := cmd.OutOrStdout()
	switch {
	case res.Cloned:
		fmt.Fprintf(w, "Cloned %s (%s) at %.8s\n", cfg.Rules.Git.Repository, head.Branch, head.SHA)
	case res.FromSHA == res.ToSHA:
		fmt.Fprintf(w, "Already up to date at %.8s\n", head.SHA)
	default:
		fmt.Fprintf(w, "Updated %.8s..%.8s, %d rule files changed\n", res.FromSHA, res.ToSHA, len(res.ChangedRuleFiles))
	}

	p := rules.NewFileProvider(rules.FileProviderConfig{Dir: repo.RulesDir()}, logger)
	if err := p.Reload(); err != nil {
		return cli.NewCommandError("rules sync", err)
	}
	fmt.Fprintf(w, "%d rule sets in %s\n", len(p.RuleSets()), repo.RulesDir())
	if err := p.LoadErrors(); err != nil {
		return cli.NewCommandError("rules sync", fmt.Errorf("some rule files failed to load: %w", err))
	}
	return nil
}
