package server

import (
	"io"
	"log/slog"

	auditortls "mercator-hq/auditor/pkg/security/tls"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tlsConfigWithoutFiles() auditortls.Config {
	return auditortls.Config{Enabled: true}
}
