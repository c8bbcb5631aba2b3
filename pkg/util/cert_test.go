package util

import (
	"crypto/x509"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateCert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")

	cert, err := LoadOrGenerateCert(certPath, keyPath)
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, parsed.Subject.Organization, "restq self-signed")
	assert.True(t, parsed.NotAfter.After(parsed.NotBefore))

	// second call loads the persisted pair instead of regenerating
	reloaded, err := LoadOrGenerateCert(certPath, keyPath)
	require.NoError(t, err)
	require.NotEmpty(t, reloaded.Certificate)

	again, err := x509.ParseCertificate(reloaded.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, parsed.SerialNumber, again.SerialNumber)
}
