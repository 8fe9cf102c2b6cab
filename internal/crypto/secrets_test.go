package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("super-secret-api-key", "hunter2")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-api-key", got)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptSecret("super-secret-api-key", "hunter2")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "wrong")
	require.Error(t, err)
}

func TestEncryptRejectsEmptyInputs(t *testing.T) {
	_, err := EncryptSecret("", "pw")
	require.Error(t, err)

	_, err = EncryptSecret("secret", "")
	require.Error(t, err)
}

func TestLoadSecretPrefersRaw(t *testing.T) {
	got, err := LoadSecret(SecretConfig{RawSecret: "plain", EncryptedPath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestLoadSecretFromEncryptedFile(t *testing.T) {
	blob, err := EncryptSecret("file-secret", "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadSecret(SecretConfig{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "file-secret", got)
}

func TestLoadSecretNoSource(t *testing.T) {
	_, err := LoadSecret(SecretConfig{})
	require.Error(t, err)
}
