package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCert(t *testing.T, dir, cn string, notAfter time.Time) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestCertificateReloader_Load(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "first", time.Now().Add(365*24*time.Hour))

	r := NewCertificateReloader(certFile, keyFile, 0, nil)
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := r.Certificate().Leaf.Subject.CommonName; got != "first" {
		t.Errorf("CommonName = %q, want first", got)
	}

	// A rotated certificate replaces the old one.
	writeCert(t, dir, "second", time.Now().Add(365*24*time.Hour))
	future := time.Now().Add(time.Minute)
	_ = os.Chtimes(certFile, future, future)
	if !r.changed() {
		t.Fatal("rotation not detected")
	}
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}
	c, err := r.GetCertificateFunc()(&tls.ClientHelloInfo{})
	if err != nil || c.Leaf.Subject.CommonName != "second" {
		t.Errorf("GetCertificate() = %v, %v", c, err)
	}
}

func TestCertificateReloader_KeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "good", time.Now().Add(time.Hour))
	r := NewCertificateReloader(certFile, keyFile, time.Minute, nil)
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(certFile, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Load(); err == nil {
		t.Fatal("Load() accepted a corrupt certificate")
	}
	if r.Certificate().Leaf.Subject.CommonName != "good" {
		t.Error("previous certificate discarded")
	}
}

func TestCertificateReloader_NoCertificate(t *testing.T) {
	r := NewCertificateReloader("missing.crt", "missing.key", 0, nil)
	if err := r.Load(); err == nil {
		t.Error("Load() succeeded for missing files")
	}
	if _, err := r.GetCertificateFunc()(nil); err == nil {
		t.Error("GetCertificate succeeded without a certificate")
	}
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"missing files", Config{Enabled: true}, true},
		{"bad version", Config{Enabled: true, CertFile: "c", KeyFile: "k", MinVersion: "1.0"}, true},
		{"ok", Config{Enabled: true, CertFile: "c", KeyFile: "k", MinVersion: "1.2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	cfg := Config{MinVersion: "1.2"}
	tc, err := cfg.ServerConfig(NewCertificateReloader("c", "k", 0, nil))
	if err != nil || tc.MinVersion != tls.VersionTLS12 {
		t.Errorf("ServerConfig() = %v, %v", tc, err)
	}
}
