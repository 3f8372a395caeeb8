package gitsync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config locates the rule repository.
type Config struct {
	// Repository is the clone URL or a local path. Empty disables syncing.
	Repository string `yaml:"repository"`

	// Branch to check out.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the rule directory inside the repository.
	Path string `yaml:"path"`

	// LocalPath receives the checkout.
	// Default: <tmp>/auditor-rules
	LocalPath string `yaml:"local_path"`

	// Depth limits clone history. Zero clones everything.
	Depth int `yaml:"depth"`

	// PollInterval is how often Run pulls.
	// Default: 1m
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout bounds each clone or pull.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig selects the transport credentials.
type AuthConfig struct {
	// Type is "none", "token" or "ssh".
	Type string `yaml:"type"`

	// Token is sent as the HTTPS basic-auth password.
	Token string `yaml:"token"`

	SSHKeyPath       string `yaml:"ssh_key_path"`
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// Enabled reports whether a repository is configured.
func (c Config) Enabled() bool {
	return c.Repository != ""
}

func (c *Config) applyDefaults() {
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.LocalPath == "" {
		c.LocalPath = filepath.Join(os.TempDir(), "auditor-rules")
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks a configuration that has a repository set.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	var errs []error
	if c.Depth < 0 {
		errs = append(errs, fmt.Errorf("depth must be >= 0"))
	}
	if filepath.IsAbs(c.Path) {
		errs = append(errs, fmt.Errorf("path must be relative to the repository root"))
	}
	switch c.Auth.Type {
	case "", "none":
	case "token":
		if c.Auth.Token == "" {
			errs = append(errs, fmt.Errorf("token auth requires auth.token"))
		}
	case "ssh":
		if c.Auth.SSHKeyPath == "" {
			errs = append(errs, fmt.Errorf("ssh auth requires auth.ssh_key_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth type %q (valid: none, token, ssh)", c.Auth.Type))
	}
	return errors.Join(errs...)
}
