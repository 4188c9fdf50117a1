package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	blob, err := SealSecret("gateway-shared-secret", "hunter2")
	require.NoError(t, err)

	out, err := OpenSecret(blob, "hunter2")
	require.NoError(t, err)
	require.Equal(t, "gateway-shared-secret", out)
}

func TestOpenSecretWrongPassword(t *testing.T) {
	blob, err := SealSecret("gateway-shared-secret", "hunter2")
	require.NoError(t, err)

	_, err = OpenSecret(blob, "hunter3")
	require.Error(t, err)
}

func TestSealSecretRejectsEmptyInputs(t *testing.T) {
	_, err := SealSecret("", "hunter2")
	require.Error(t, err)
	_, err = SealSecret("secret", "")
	require.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	// Raw wins over everything.
	out, err := LoadSecret(SecretConfig{Raw: "inline"})
	require.NoError(t, err)
	require.Equal(t, "inline", out)

	// Sealed file path.
	blob, err := SealSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	out, err = LoadSecret(SecretConfig{SealedPath: path, Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "from-file", out)

	// Nothing configured.
	_, err = LoadSecret(SecretConfig{})
	require.Error(t, err)
}

func TestRequestSignerDeterministic(t *testing.T) {
	s := &RequestSigner{Key: "k1", Secret: "s3cret"}

	h1 := s.HeadersAt("POST", "/hooks/salvage", `{"kind":"outbid"}`, 1717243200)
	h2 := s.HeadersAt("POST", "/hooks/salvage", `{"kind":"outbid"}`, 1717243200)
	require.Equal(t, h1, h2)
	require.Equal(t, "k1", h1["X-Salvage-Key"])
	require.Equal(t, "1717243200", h1["X-Salvage-Timestamp"])
	require.NotEmpty(t, h1["X-Salvage-Signature"])

	// Any component change moves the signature.
	h3 := s.HeadersAt("POST", "/hooks/salvage", `{"kind":"winning"}`, 1717243200)
	require.NotEqual(t, h1["X-Salvage-Signature"], h3["X-Salvage-Signature"])
	h4 := s.HeadersAt("POST", "/hooks/other", `{"kind":"outbid"}`, 1717243200)
	require.NotEqual(t, h1["X-Salvage-Signature"], h4["X-Salvage-Signature"])
}
