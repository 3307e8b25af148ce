package keystore_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentclose/sentc-go/keystore"
)

func newKeystoreWithAeadKey(t *testing.T) *keystore.Keystore {
	t.Helper()
	ks := keystore.New(t.TempDir())
	masterKey := make([]byte, 32)
	ks.ProviderConfigs[""] = keystore.ProviderConfig{
		Config: map[string]string{"key": base64.StdEncoding.EncodeToString(masterKey)},
	}
	return ks
}

func TestSaveLoadRoundTripWithDefaultAeadProvider(t *testing.T) {
	ks := newKeystoreWithAeadKey(t)
	plaintext := []byte(`{"user_id":"user-1","keys":[]}`)

	err := ks.Save(context.Background(), "user-1", plaintext, keystore.ProviderConfig{})
	require.NoError(t, err)

	got, err := ks.Load(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestSaveWithoutRegisteredMasterKeyFails(t *testing.T) {
	ks := keystore.New(t.TempDir())
	err := ks.Save(context.Background(), "user-1", []byte("data"), keystore.ProviderConfig{})
	require.Error(t, err)
}

func TestSavePersistsNoKeyMaterialAlongsideCiphertext(t *testing.T) {
	ks := newKeystoreWithAeadKey(t)
	masterKeyB64 := ks.ProviderConfigs[""].Config["key"]

	require.NoError(t, ks.Save(context.Background(), "user-1", []byte(`{"secret":true}`), keystore.ProviderConfig{}))

	raw, err := os.ReadFile(filepath.Join(ks.Dir, "user-1.sentc-key.json"))
	require.NoError(t, err)

	require.NotContains(t, string(raw), masterKeyB64, "persisted envelope must not contain the master key")
	require.NotContains(t, string(raw), "key_encryption_key", "envelope must not carry any per-entity key material field")
}

func TestLoadMissingEntityFails(t *testing.T) {
	ks := keystore.New(t.TempDir())
	_, err := ks.Load(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestDeleteRemovesEntityAndIsIdempotent(t *testing.T) {
	ks := newKeystoreWithAeadKey(t)
	require.NoError(t, ks.Save(context.Background(), "user-1", []byte("data"), keystore.ProviderConfig{}))

	require.NoError(t, ks.Delete("user-1"))
	_, err := ks.Load(context.Background(), "user-1")
	require.Error(t, err)

	// deleting again (or an entity that never existed) must not error.
	require.NoError(t, ks.Delete("user-1"))
}

func TestSaveIsolatesEntitiesByFile(t *testing.T) {
	ks := newKeystoreWithAeadKey(t)
	require.NoError(t, ks.Save(context.Background(), "user-1", []byte("alice"), keystore.ProviderConfig{}))
	require.NoError(t, ks.Save(context.Background(), "user-2", []byte("bob"), keystore.ProviderConfig{}))

	got1, err := ks.Load(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "alice", string(got1))

	got2, err := ks.Load(context.Background(), "user-2")
	require.NoError(t, err)
	require.Equal(t, "bob", string(got2))
}
