// Package fipsprofile implements the "fips" algorithm family for
// deployments restricted to FIPS 140-validated primitives: RSA-OAEP for
// asymmetric sealing, RSA-PKCS1v15/RS256 (via go-jose) for signing,
// AES-256-GCM for symmetric AEAD, HMAC-SHA256 for the searchable index,
// and scrypt for password derivation. Sortable (order-preserving)
// encoding has no FIPS-validated construction, so SortableKey in this
// family always fails.
package fipsprofile

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"

	"github.com/go-jose/go-jose/v3"

	"golang.org/x/crypto/scrypt"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/sdkerr"
)

// SymKey is an AES-256-GCM key.
type SymKey struct {
	id  string
	raw []byte
	gcm cipher.AEAD
}

func NewSymKey(id string, key []byte) (*SymKey, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return &SymKey{id: id, raw: append([]byte(nil), key...), gcm: gcm}, nil
}

func GenerateSymKey(id string) (*SymKey, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return NewSymKey(id, key)
}

func (k *SymKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgAesGcm }
func (k *SymKey) KeyId() string                  { return k.id }

func (k *SymKey) EncryptRaw(data []byte) (cryptomat.EncryptedHead, []byte, error) {
	return k.EncryptRawWithAad(data, nil)
}

func (k *SymKey) EncryptRawWithAad(data, aad []byte) (cryptomat.EncryptedHead, []byte, error) {
	nonce := make([]byte, k.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return cryptomat.EncryptedHead{}, nil, sdkerr.Wrap(err)
	}
	ct := k.gcm.Seal(nonce, nonce, data, aad)
	return cryptomat.EncryptedHead{Id: k.id}, ct, nil
}

func (k *SymKey) DecryptRaw(head cryptomat.EncryptedHead, ciphertext []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	return k.DecryptRawWithAad(head, ciphertext, nil, verify)
}

func (k *SymKey) DecryptRawWithAad(head cryptomat.EncryptedHead, ciphertext, aad []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	ns := k.gcm.NonceSize()
	if len(ciphertext) < ns {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "fips: ciphertext too short")
	}
	plain, err := k.gcm.Open(nil, ciphertext[:ns], ciphertext[ns:], aad)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	if head.Sign != nil && verify != nil {
		if head.Sign.Id != verify.KeyId() {
			return nil, sdkerr.Newf(sdkerr.KindSdk, "fips: verify key id mismatch")
		}
		ok, err := verify.Verify(plain, head.Sign.Signature)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, sdkerr.Newf(sdkerr.KindSdk, "fips: signature verification failed")
		}
	}
	return plain, nil
}

// SignKey wraps an RSA private key and signs via go-jose's RS256
// signer.
type SignKey struct {
	id  string
	key *rsa.PrivateKey
}

func NewSignKey(id string, key *rsa.PrivateKey) *SignKey { return &SignKey{id: id, key: key} }

func GenerateSignKeyPair(id string, bits int) (*SignKey, *VerifyKey, error) {
	if bits == 0 {
		bits = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, sdkerr.Wrap(err)
	}
	return &SignKey{id: id, key: key}, &VerifyKey{id: id, key: &key.PublicKey}, nil
}

func (k *SignKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgRsa2048Sign }
func (k *SignKey) KeyId() string                  { return k.id }

func (k *SignKey) Sign(data []byte) ([]byte, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: k.key}, nil)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	obj, err := signer.Sign(data)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return []byte(obj.FullSerialize()), nil
}

// VerifyKey wraps an RSA public key and verifies a go-jose JWS object
// produced by SignKey.Sign.
type VerifyKey struct {
	id  string
	key *rsa.PublicKey
}

func NewVerifyKey(id string, key *rsa.PublicKey) *VerifyKey { return &VerifyKey{id: id, key: key} }

func (k *VerifyKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgRsa2048Sign }
func (k *VerifyKey) KeyId() string                  { return k.id }

func (k *VerifyKey) Verify(data, sig []byte) (bool, error) {
	obj, err := jose.ParseSigned(string(sig))
	if err != nil {
		return false, sdkerr.Wrap(err)
	}
	payload, err := obj.Verify(k.key)
	if err != nil {
		return false, nil
	}
	return string(payload) == string(data), nil
}

// AsymPrivateKey/AsymPublicKey implement RSA-OAEP sealing.
type AsymPrivateKey struct {
	id  string
	key *rsa.PrivateKey
}

type AsymPublicKey struct {
	id  string
	key *rsa.PublicKey
}

func NewAsymPrivateKey(id string, key *rsa.PrivateKey) *AsymPrivateKey {
	return &AsymPrivateKey{id: id, key: key}
}

func NewAsymPublicKey(id string, key *rsa.PublicKey) *AsymPublicKey {
	return &AsymPublicKey{id: id, key: key}
}

func GenerateAsymKeyPair(id string, bits int) (*AsymPrivateKey, *AsymPublicKey, error) {
	if bits == 0 {
		bits = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, sdkerr.Wrap(err)
	}
	return &AsymPrivateKey{id: id, key: key}, &AsymPublicKey{id: id, key: &key.PublicKey}, nil
}

func (k *AsymPrivateKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgRsa2048Oaep }
func (k *AsymPrivateKey) KeyId() string                  { return k.id }
func (k *AsymPublicKey) Algorithm() cryptomat.Algorithm  { return cryptomat.AlgRsa2048Oaep }
func (k *AsymPublicKey) KeyId() string                   { return k.id }

func (k *AsymPublicKey) Encrypt(data []byte) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, k.key, data, nil)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return ct, nil
}

func (k *AsymPrivateKey) Decrypt(ciphertext []byte) ([]byte, error) {
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.key, ciphertext, nil)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return plain, nil
}

// HmacKey produces HMAC-SHA256 blind index tokens.
type HmacKey struct {
	key []byte
}

func NewHmacKey(key []byte) *HmacKey { return &HmacKey{key: key} }

func GenerateHmacKey() (*HmacKey, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return &HmacKey{key: key}, nil
}

func (k *HmacKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgHmacSha256 }
func (k *HmacKey) Tag(data []byte) []byte {
	mac := hmac.New(sha256.New, k.key)
	mac.Write(data)
	return mac.Sum(nil)
}

// NonSortableKey always fails: there is no FIPS-validated
// order-preserving construction, so the fips family cannot support
// server-side sortable encoding at all.
type NonSortableKey struct{}

func errNonSortable() error {
	return sdkerr.Newf(sdkerr.KindSdk, "fips: sortable encoding has no FIPS-validated construction")
}

func (NonSortableKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgNonSortable }
func (NonSortableKey) EncryptNumber(uint64) (uint64, error) {
	return 0, errNonSortable()
}
func (NonSortableKey) EncryptString(string, int) (uint64, error) {
	return 0, errNonSortable()
}
func (NonSortableKey) Raw() []byte { return nil }

// PwHasher derives a password-unlock secret via scrypt.
type PwHasher struct{}

func NewPwHasher() *PwHasher { return &PwHasher{} }

func (PwHasher) Algorithm() cryptomat.Algorithm { return cryptomat.AlgScrypt }
func (PwHasher) SaltSize() int                  { return 16 }

func (PwHasher) Derive(password string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return key, nil
}

// Raw exporters, used to persist/reload a container's key material.

func (k *SymKey) Raw() []byte         { return k.raw }
func (k *SignKey) Raw() []byte        { return x509.MarshalPKCS1PrivateKey(k.key) }
func (k *VerifyKey) Raw() []byte      { return x509.MarshalPKCS1PublicKey(k.key) }
func (k *AsymPrivateKey) Raw() []byte { return x509.MarshalPKCS1PrivateKey(k.key) }
func (k *AsymPublicKey) Raw() []byte  { return x509.MarshalPKCS1PublicKey(k.key) }
func (k *HmacKey) Raw() []byte        { return k.key }

func init() {
	cryptomat.RegisterSymKey(cryptomat.AlgAesGcm, func(id string, raw []byte) (cryptomat.SymKey, error) {
		return NewSymKey(id, raw)
	})
	cryptomat.RegisterSign(cryptomat.AlgRsa2048Sign, func(id string, raw []byte) (cryptomat.SignKey, error) {
		key, err := x509.ParsePKCS1PrivateKey(raw)
		if err != nil {
			return nil, sdkerr.Wrap(err)
		}
		return NewSignKey(id, key), nil
	})
	cryptomat.RegisterVerify(cryptomat.AlgRsa2048Sign, func(id string, raw []byte) (cryptomat.VerifyKey, error) {
		key, err := x509.ParsePKCS1PublicKey(raw)
		if err != nil {
			return nil, sdkerr.Wrap(err)
		}
		return NewVerifyKey(id, key), nil
	})
	cryptomat.RegisterAsymPrivate(cryptomat.AlgRsa2048Oaep, func(id string, raw []byte) (cryptomat.AsymPrivateKey, error) {
		key, err := x509.ParsePKCS1PrivateKey(raw)
		if err != nil {
			return nil, sdkerr.Wrap(err)
		}
		return NewAsymPrivateKey(id, key), nil
	})
	cryptomat.RegisterAsymPublic(cryptomat.AlgRsa2048Oaep, func(id string, raw []byte) (cryptomat.AsymPublicKey, error) {
		key, err := x509.ParsePKCS1PublicKey(raw)
		if err != nil {
			return nil, sdkerr.Wrap(err)
		}
		return NewAsymPublicKey(id, key), nil
	})
	cryptomat.RegisterHmac(cryptomat.AlgHmacSha256, func(raw []byte) (cryptomat.HmacKey, error) {
		return NewHmacKey(raw), nil
	})
	cryptomat.RegisterSortable(cryptomat.AlgNonSortable, func([]byte) (cryptomat.SortableKey, error) {
		return NonSortableKey{}, nil
	})

	cryptomat.RegisterSymKeyGen(cryptomat.AlgAesGcm, func(id string) (cryptomat.SymKey, error) {
		return GenerateSymKey(id)
	})
	cryptomat.RegisterAsymKeyGen(cryptomat.AlgRsa2048Oaep, func(id string) (cryptomat.AsymPrivateKey, cryptomat.AsymPublicKey, error) {
		return GenerateAsymKeyPair(id, 0)
	})
	cryptomat.RegisterSignKeyGen(cryptomat.AlgRsa2048Sign, func(id string) (cryptomat.SignKey, cryptomat.VerifyKey, error) {
		return GenerateSignKeyPair(id, 0)
	})
	cryptomat.RegisterHmacGen(cryptomat.AlgHmacSha256, func() (cryptomat.HmacKey, error) {
		return GenerateHmacKey()
	})
	cryptomat.RegisterSortableGen(cryptomat.AlgNonSortable, func() (cryptomat.SortableKey, error) {
		return NonSortableKey{}, errNonSortable()
	})
}
