package vault_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mediafetch/fetchd/internal/vault"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()
	key, err := vault.NewKey()
	require.NoError(t, err)

	plaintext := []byte("session=abc123; csrf=xyz")
	sealed, err := vault.Encrypt(plaintext, key)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := vault.Decrypt(sealed, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestDecryptRejectsTampering(t *testing.T) {
	t.Parallel()
	key, err := vault.NewKey()
	require.NoError(t, err)

	sealed, err := vault.Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = vault.Decrypt(sealed, key)
	require.Error(t, err)

	_, err = vault.Decrypt([]byte("short"), key)
	require.Error(t, err)

	other, err := vault.NewKey()
	require.NoError(t, err)
	good, err := vault.Encrypt([]byte("secret"), key)
	require.NoError(t, err)
	_, err = vault.Decrypt(good, other)
	require.Error(t, err)
}

func TestNewKeeperRejectsBadKey(t *testing.T) {
	t.Parallel()
	_, err := vault.NewKeeper(t.TempDir(), []byte("too short"))
	require.Error(t, err)
}

func TestKeeperLifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	key, err := vault.NewKey()
	require.NoError(t, err)
	keeper, err := vault.NewKeeper(dir, key)
	require.NoError(t, err)

	const id = "job-1"
	require.False(t, keeper.Has(id))

	cookies := []byte("# Netscape HTTP Cookie File\nexample.com\tTRUE\t/\tTRUE\t0\tsid\tabc")
	require.NoError(t, keeper.Store(id, cookies))
	require.True(t, keeper.Has(id))

	// ciphertext on disk never equals the secret
	sealed, err := os.ReadFile(filepath.Join(dir, id+".cred"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "abc")

	path, cleanup, err := keeper.Materialize(id)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, cookies, got)

	cleanup()
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, keeper.Remove(id))
	require.False(t, keeper.Has(id))
	require.NoError(t, keeper.Remove(id))
}

func TestKeeperMaterializeWithoutStore(t *testing.T) {
	t.Parallel()
	key, err := vault.NewKey()
	require.NoError(t, err)
	keeper, err := vault.NewKeeper(t.TempDir(), key)
	require.NoError(t, err)

	_, _, err = keeper.Materialize("missing")
	require.ErrorIs(t, err, vault.ErrNoCredentials)
}
