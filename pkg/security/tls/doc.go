// Package tls serves the API over TLS with certificates that are reloaded
// from disk when they change, so rotated certificates take effect without a
// restart.
package tls
