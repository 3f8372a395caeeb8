// Package secrets resolves ${secret:name} references in configuration values.
//
// Providers are tried in order. The environment provider maps
// "minio-secret-key" to AUDITOR_SECRET_MINIO_SECRET_KEY; the file provider
// reads <dir>/minio-secret-key, which must be mode 0600 or 0400.
//
//	m := secrets.NewManager(secrets.NewEnvProvider("AUDITOR_SECRET_"), fileProvider)
//	dsn, err := m.ResolveReferences(ctx, cfg.Storage.Postgres.DSN)
package secrets
