package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// Config controls TLS for the API server.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the files are checked for changes.
	// Default: 1m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// Validate checks the file settings of an enabled config.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.New("cert_file and key_file are required when TLS is enabled")
	}
	if _, err := parseVersion(c.MinVersion); err != nil {
		return err
	}
	return nil
}

// ServerConfig returns a tls.Config that takes its certificate from r.
func (c *Config) ServerConfig(r *CertificateReloader) (*tls.Config, error) {
	v, err := parseVersion(c.MinVersion)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:     v,
		GetCertificate: r.GetCertificateFunc(),
	}, nil
}

func parseVersion(s string) (uint16, error) {
	switch s {
	case "", "1.3":
		return tls.VersionTLS13, nil
	case "1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS min_version %q (valid: 1.2, 1.3)", s)
	}
}
