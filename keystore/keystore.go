// Package keystore persists the serialized form of a *user.User or
// *group.Group to disk, sealed under a key-encryption key (KEK)
// instead of in plaintext. The go-kms-wrapping provider set (local
// AEAD by default, or a cloud KMS/Vault transit backend) wraps a JSON
// envelope holding one entity's serialized bytes.
package keystore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	kms "github.com/hashicorp/go-kms-wrapping/v2"
	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/go-kms-wrapping/v2/aead"
	"github.com/hashicorp/go-kms-wrapping/wrappers/awskms/v2"
	"github.com/hashicorp/go-kms-wrapping/wrappers/azurekeyvault/v2"
	"github.com/hashicorp/go-kms-wrapping/wrappers/gcpckms/v2"
	"github.com/hashicorp/go-kms-wrapping/wrappers/transit/v2"

	"github.com/sentclose/sentc-go/sdkerr"
)

// fileExtension marks a persisted entity file.
const fileExtension = ".sentc-key.json"

// ProviderConfig names a KEK provider and the config map go-kms-wrapping
// needs to reach it. For the cloud/transit backends that's region, key
// id, mount path, etc. For the default "aead" provider, Config must
// carry "key": a base64-encoded master key supplied by the operator,
// never one generated per call.
type ProviderConfig struct {
	Provider string
	Name     string
	Config   map[string]string
}

// Keystore persists entities under a directory, one file per entity
// id, each independently sealed under the KEK its ProviderConfig
// names.
type Keystore struct {
	Dir             string
	ProviderConfigs map[string]ProviderConfig // keyed by provider+name
}

func New(dir string) *Keystore {
	return &Keystore{Dir: dir, ProviderConfigs: map[string]ProviderConfig{}}
}

// envelope is the on-disk JSON shape: a KEK-wrapped data encryption
// ciphertext plus the provider that can unwrap it. It never carries
// key material; the key lives only in the caller's registered
// ProviderConfig, never next to the blob it protects.
type envelope struct {
	Id                         string `json:"id"`
	EncryptedDataEncryptionKey []byte `json:"encrypted_data_encryption_key"`
	Provider                   string `json:"provider"`
	ProviderName               string `json:"provider_name"`
}

// Save seals plaintext (the JSON-serialized User or Group) under the
// named KEK provider and writes it to <dir>/<id><extension>.
func (k *Keystore) Save(ctx context.Context, id string, plaintext []byte, provider ProviderConfig) error {
	wrapper, err := k.newKMSWrapper(provider.Provider, provider.Name, id)
	if err != nil {
		return sdkerr.Wrap(err)
	}
	blob, err := wrapper.Encrypt(ctx, plaintext)
	if err != nil {
		return sdkerr.Wrap(err)
	}

	env := envelope{
		Id:                         id,
		EncryptedDataEncryptionKey: blob.Ciphertext,
		Provider:                   provider.Provider,
		ProviderName:               provider.Name,
	}
	buf, err := json.Marshal(env)
	if err != nil {
		return sdkerr.Newf(sdkerr.KindJsonToStringFailed, "%v", err)
	}
	if err := os.MkdirAll(k.Dir, 0o700); err != nil {
		return sdkerr.Wrap(err)
	}
	return os.WriteFile(filepath.Join(k.Dir, id+fileExtension), buf, 0o600)
}

// Load reverses Save, reconstructing the wrapper from the envelope's
// own provider/name rather than requiring the caller to supply it
// again — the on-disk file is self-describing about which registered
// ProviderConfig unwraps it, never about the key itself.
func (k *Keystore) Load(ctx context.Context, id string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(k.Dir, id+fileExtension))
	if err != nil {
		return nil, sdkerr.Newf(sdkerr.KindFileReadError, "%v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}

	wrapper, err := k.newKMSWrapper(env.Provider, env.ProviderName, id)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	plain, err := wrapper.Decrypt(ctx, &kms.BlobInfo{Ciphertext: env.EncryptedDataEncryptionKey})
	if err != nil {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "keystore: unable to decrypt wrapped entity %s: %v", id, err)
	}
	return plain, nil
}

// Delete removes a persisted entity's file, ignoring a not-found error
// so callers can call it unconditionally on logout/delete.
func (k *Keystore) Delete(id string) error {
	err := os.Remove(filepath.Join(k.Dir, id+fileExtension))
	if err != nil && !os.IsNotExist(err) {
		return sdkerr.Wrap(err)
	}
	return nil
}

// newKMSWrapper dispatches on provider name to the matching
// go-kms-wrapping implementation, local AEAD by default. Every branch,
// aead included, draws its key material from the caller-registered
// ProviderConfig rather than anything generated on the fly, so a
// provider is never set up from secrets the Keystore invented and then
// had to remember.
func (k *Keystore) newKMSWrapper(provider, name, id string) (kms.Wrapper, error) {
	cfg, hasCfg := k.ProviderConfigs[provider+name]

	var wrapper kms.Wrapper

	switch provider {
	case "awskms":
		wrapper = awskms.NewWrapper()
	case "azurekeyvault":
		wrapper = azurekeyvault.NewWrapper()
	case "gcpckms":
		wrapper = gcpckms.NewWrapper()
	case "transit":
		wrapper = transit.NewWrapper()
	default: // "aead"
		if !hasCfg || cfg.Config["key"] == "" {
			return nil, sdkerr.Newf(sdkerr.KindSdk,
				"keystore: aead provider requires a master key registered at ProviderConfigs[%q].Config[\"key\"]", provider+name)
		}
		masterKey, err := base64.StdEncoding.DecodeString(cfg.Config["key"])
		if err != nil {
			return nil, sdkerr.Newf(sdkerr.KindSdk, "keystore: aead master key is not valid base64: %v", err)
		}
		w := aead.NewWrapper()
		if _, err := w.SetConfig(context.Background(),
			aead.WithAeadType(kms.AeadTypeAesGcm),
			aead.WithHashType(kms.HashTypeSha256),
			kms.WithKeyId(id),
		); err != nil {
			return nil, err
		}
		if err := w.SetAesGcmKeyBytes(masterKey); err != nil {
			return nil, err
		}
		return w, nil
	}

	if hasCfg {
		if _, err := wrapper.SetConfig(context.Background(), wrapping.WithConfigMap(cfg.Config)); err != nil {
			return nil, err
		}
	}
	return wrapper, nil
}
