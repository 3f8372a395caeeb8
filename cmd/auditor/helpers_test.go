package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	color.NoColor = true
}

const contractRules = `
id: contracts
version: "2024.1"
rules:
  - id: has-terms
    name: Terms clause
    type: KEYWORD
    threshold: 0.5
    parameters:
      keywords: ["terms", "conditions"]
  - id: no-guarantee
    name: No guaranteed returns
    type: KEYWORD
    threshold: 1
    parameters:
      keywords: ["guaranteed"]
      mode: forbidden
`

// workspace creates a rules directory, a documents root and a config file
// pointing at both, and points the global --config at it.
type workspace struct {
	dir, rules, docs, config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &workspace{
		dir:    dir,
		rules:  filepath.Join(dir, "rules"),
		docs:   filepath.Join(dir, "docs"),
		config: filepath.Join(dir, "config.yaml"),
	}
	for _, d := range []string{ws.rules, ws.docs} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	ws.write(t, filepath.Join(ws.rules, "contracts.yaml"), contractRules)
	ws.write(t, filepath.Join(ws.docs, "good.txt"), "These terms and conditions apply to the policy.\n")
	ws.write(t, filepath.Join(ws.docs, "bad.md"), "# Offer\n\nReturns are guaranteed under these terms.\n")
	ws.write(t, ws.config, `
rules:
  dir: `+ws.rules+`
documents:
  root: `+ws.docs+`
storage:
  driver: memory
report:
  dir: `+filepath.Join(dir, "reports")+`
telemetry:
  logging:
    level: error
`)

	oldCfg, oldVerbose := cfgFile, verbose
	cfgFile, verbose = ws.config, false
	t.Cleanup(func() { cfgFile, verbose = oldCfg, oldVerbose })
	return ws
}

func (ws *workspace) write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// testCommand returns a bare command whose output is captured.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	return cmd, &stdout, &stderr
}
