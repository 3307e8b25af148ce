// Package std implements the "std" algorithm family: X25519+HKDF for
// asymmetric sealing, Ed25519 for signing, XChaCha20-Poly1305 for
// symmetric AEAD, keyed BLAKE2b for the searchable HMAC, Argon2id for
// password derivation, and a custom order-preserving codec for sortable
// encoding. This is the default family a new group/user is created
// with; fipsprofile is the alternative for deployments restricted to
// FIPS 140-validated primitives.
package std

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"golang.org/x/crypto/blake2b"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/sdkerr"

	"crypto/sha256"
	"io"
)

// SymKey is an XChaCha20-Poly1305 key.
type SymKey struct {
	id  string
	key [chacha20poly1305.KeySize]byte
}

func NewSymKey(id string, key []byte) (*SymKey, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "std: bad sym key length %d", len(key))
	}
	k := &SymKey{id: id}
	copy(k.key[:], key)
	return k, nil
}

func GenerateSymKey(id string) (*SymKey, error) {
	buf := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(buf); err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return NewSymKey(id, buf)
}

func (k *SymKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgXChaCha20Poly }
func (k *SymKey) KeyId() string                  { return k.id }

func (k *SymKey) newAead() (aeadT, error) {
	a, err := chacha20poly1305.NewX(k.key[:])
	if err != nil {
		return aeadT{}, sdkerr.Wrap(err)
	}
	return aeadT{a}, nil
}

type aeadT struct {
	a interface {
		NonceSize() int
		Overhead() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

func (k *SymKey) EncryptRaw(data []byte) (cryptomat.EncryptedHead, []byte, error) {
	return k.EncryptRawWithAad(data, nil)
}

func (k *SymKey) EncryptRawWithAad(data, aad []byte) (cryptomat.EncryptedHead, []byte, error) {
	aead, err := k.newAead()
	if err != nil {
		return cryptomat.EncryptedHead{}, nil, err
	}
	nonce := make([]byte, aead.a.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return cryptomat.EncryptedHead{}, nil, sdkerr.Wrap(err)
	}
	ct := aead.a.Seal(nonce, nonce, data, aad)
	return cryptomat.EncryptedHead{Id: k.id}, ct, nil
}

func (k *SymKey) DecryptRaw(head cryptomat.EncryptedHead, ciphertext []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	return k.DecryptRawWithAad(head, ciphertext, nil, verify)
}

func (k *SymKey) DecryptRawWithAad(head cryptomat.EncryptedHead, ciphertext, aad []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	aead, err := k.newAead()
	if err != nil {
		return nil, err
	}
	ns := aead.a.NonceSize()
	if len(ciphertext) < ns {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "std: ciphertext too short")
	}
	nonce, ct := ciphertext[:ns], ciphertext[ns:]
	plain, err := aead.a.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	if head.Sign != nil && verify != nil {
		if head.Sign.Id != verify.KeyId() {
			return nil, sdkerr.Newf(sdkerr.KindSdk, "std: verify key id mismatch")
		}
		ok, err := verify.Verify(plain, head.Sign.Signature)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, sdkerr.Newf(sdkerr.KindSdk, "std: signature verification failed")
		}
	}
	return plain, nil
}

// SignKey is an Ed25519 private signing key.
type SignKey struct {
	id  string
	key ed25519.PrivateKey
}

func NewSignKey(id string, key ed25519.PrivateKey) *SignKey {
	return &SignKey{id: id, key: key}
}

func GenerateSignKey(id string) (*SignKey, *VerifyKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, sdkerr.Wrap(err)
	}
	return &SignKey{id: id, key: priv}, &VerifyKey{id: id, key: pub}, nil
}

func (k *SignKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgEd25519 }
func (k *SignKey) KeyId() string                  { return k.id }
func (k *SignKey) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.key, data), nil
}

// VerifyKey is an Ed25519 public verify key.
type VerifyKey struct {
	id  string
	key ed25519.PublicKey
}

func NewVerifyKey(id string, key ed25519.PublicKey) *VerifyKey { return &VerifyKey{id: id, key: key} }

func (k *VerifyKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgEd25519 }
func (k *VerifyKey) KeyId() string                  { return k.id }
func (k *VerifyKey) Verify(data, sig []byte) (bool, error) {
	return ed25519.Verify(k.key, data, sig), nil
}

// AsymPrivateKey/AsymPublicKey implement X25519 + HKDF-SHA256 sealing:
// an ephemeral X25519 keypair is generated per encryption, the shared
// secret is run through HKDF to derive a ChaCha20-Poly1305 key, and
// the ephemeral public key is prefixed to the ciphertext.
type AsymPrivateKey struct {
	id  string
	key [32]byte
}

type AsymPublicKey struct {
	id  string
	key [32]byte
}

func NewAsymPrivateKey(id string, key []byte) (*AsymPrivateKey, error) {
	if len(key) != 32 {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "std: bad x25519 private key length")
	}
	k := &AsymPrivateKey{id: id}
	copy(k.key[:], key)
	return k, nil
}

func NewAsymPublicKey(id string, key []byte) (*AsymPublicKey, error) {
	if len(key) != 32 {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "std: bad x25519 public key length")
	}
	k := &AsymPublicKey{id: id}
	copy(k.key[:], key)
	return k, nil
}

func GenerateAsymKeyPair(id string) (*AsymPrivateKey, *AsymPublicKey, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, nil, sdkerr.Wrap(err)
	}
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &priv)
	return &AsymPrivateKey{id: id, key: priv}, &AsymPublicKey{id: id, key: pub}, nil
}

func (k *AsymPrivateKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgX25519HkdfSha256 }
func (k *AsymPrivateKey) KeyId() string                  { return k.id }

func (k *AsymPublicKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgX25519HkdfSha256 }
func (k *AsymPublicKey) KeyId() string                  { return k.id }

func (k *AsymPublicKey) Encrypt(data []byte) ([]byte, error) {
	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return nil, sdkerr.Wrap(err)
	}
	var ephPub [32]byte
	curve25519.ScalarBaseMult(&ephPub, &ephPriv)

	shared, err := curve25519.X25519(ephPriv[:], k.key[:])
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}

	aeadKey, err := hkdfDerive(shared, "sentc-asym-seal")
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, sdkerr.Wrap(err)
	}
	ct := aead.Seal(nonce, nonce, data, nil)
	out := make([]byte, 32+len(ct))
	copy(out, ephPub[:])
	copy(out[32:], ct)
	return out, nil
}

func (k *AsymPrivateKey) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 32 {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "std: ciphertext too short")
	}
	ephPub, ct := ciphertext[:32], ciphertext[32:]

	shared, err := curve25519.X25519(k.key[:], ephPub)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	aeadKey, err := hkdfDerive(shared, "sentc-asym-seal")
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	ns := aead.NonceSize()
	if len(ct) < ns {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "std: ciphertext too short")
	}
	plain, err := aead.Open(nil, ct[:ns], ct[ns:], nil)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return plain, nil
}

func hkdfDerive(secret []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	out := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return out, nil
}

// HmacKey produces keyed-BLAKE2b blind index tokens.
type HmacKey struct {
	key []byte
}

func NewHmacKey(key []byte) (*HmacKey, error) {
	return &HmacKey{key: key}, nil
}

func GenerateHmacKey() (*HmacKey, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return &HmacKey{key: key}, nil
}

func (k *HmacKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgHmacBlake2b }
func (k *HmacKey) Tag(data []byte) []byte {
	h, _ := blake2b.New256(k.key)
	h.Write(data)
	return h.Sum(nil)
}

// SortableKey implements a keyed order-preserving encoder: the input
// number or codepoints are folded into a monotone u64, and one
// key-derived offset is added to the result. Good enough for server-side sort,
// explicitly not confidentiality-equivalent to AEAD.
type SortableKey struct {
	key []byte
}

func NewSortableKey(key []byte) *SortableKey { return &SortableKey{key: key} }

func GenerateSortableKey() (*SortableKey, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return &SortableKey{key: key}, nil
}

func (k *SortableKey) Algorithm() cryptomat.Algorithm { return cryptomat.AlgOpeU64 }

// keyOffset derives a deterministic, key-dependent offset in
// [0, 1<<20) so that numeric/string order is preserved (the offset is
// added uniformly, never reordering by input) while raw values are not
// exposed verbatim.
func (k *SortableKey) keyOffset() uint64 {
	h, _ := blake2b.New256(k.key)
	h.Write([]byte("sentc-sortable-offset"))
	sum := h.Sum(nil)
	v := uint64(sum[0])<<16 | uint64(sum[1])<<8 | uint64(sum[2])
	return v % (1 << 20)
}

func (k *SortableKey) EncryptNumber(n uint64) (uint64, error) {
	// scale n up to keep headroom for the additive offset without
	// disturbing ordering, then add the key-derived offset. Inputs past
	// MaxSortableNumber would wrap the multiplication mod 2^64 and sort
	// below smaller values, so they are rejected outright.
	if n > cryptomat.MaxSortableNumber {
		return 0, sdkerr.Newf(sdkerr.KindSdk, "std: sortable number %d exceeds the maximum encodable value %d", n, uint64(cryptomat.MaxSortableNumber))
	}
	const scale = 1 << 21
	return n*scale + k.keyOffset(), nil
}

// sortableStringCharBits/sortableStringOffsetBits must satisfy
// charBits*cryptomat.MaxSortableStringLen+offsetBits <= 64, otherwise
// the earliest characters get shifted out of the uint64 entirely and
// stop affecting the result (exactly the overflow this packing used to
// have at 17 bits/char). 8 bits per character stores codepoint+1, so
// codepoints 0-254 stay distinct and every codepoint from 254 up maps
// to the same top value 255; it leaves 8 bits for the offset at
// maxLen==7, the largest maxLen EncryptString accepts.
const (
	sortableStringCharBits   = 8
	sortableStringOffsetBits = 8
	sortableStringMaxChar    = 1<<sortableStringCharBits - 1
)

func (k *SortableKey) EncryptString(s string, maxLen int) (uint64, error) {
	if maxLen <= 0 {
		maxLen = 4
	}
	if maxLen > cryptomat.MaxSortableStringLen {
		return 0, sdkerr.Newf(sdkerr.KindSdk, "std: max_len %d exceeds the maximum sortable string length of %d", maxLen, cryptomat.MaxSortableStringLen)
	}
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	var v uint64
	for i := 0; i < maxLen; i++ {
		var c uint64
		if i < len(runes) {
			c = uint64(runes[i]) + 1 // +1 so the null codepoint still sorts above "absent"
		}
		if c > sortableStringMaxChar {
			c = sortableStringMaxChar
		}
		v = v<<sortableStringCharBits | c
	}
	// reserve low bits for the key offset, scaled down so it never
	// changes the ordering established by the character digits above.
	return v<<sortableStringOffsetBits | (k.keyOffset() & (1<<sortableStringOffsetBits - 1)), nil
}

// PwHasher derives a password-unlock secret via Argon2id, matching the
// std family's password KDF.
type PwHasher struct{}

func NewPwHasher() *PwHasher { return &PwHasher{} }

func (PwHasher) Algorithm() cryptomat.Algorithm { return cryptomat.AlgArgon2id }
func (PwHasher) SaltSize() int                  { return 16 }

func (PwHasher) Derive(password string, salt []byte) ([]byte, error) {
	if len(salt) != 16 {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "std: argon2id salt must be 16 bytes")
	}
	return argon2.IDKey([]byte(password), salt, 3, 64*1024, 4, 32), nil
}

// Raw exporters, used to persist/reload a container's key material.

func (k *SymKey) Raw() []byte         { return k.key[:] }
func (k *SignKey) Raw() []byte        { return []byte(k.key) }
func (k *VerifyKey) Raw() []byte      { return []byte(k.key) }
func (k *AsymPrivateKey) Raw() []byte { return k.key[:] }
func (k *AsymPublicKey) Raw() []byte  { return k.key[:] }
func (k *HmacKey) Raw() []byte        { return k.key }
func (k *SortableKey) Raw() []byte    { return k.key }

func init() {
	cryptomat.RegisterSymKey(cryptomat.AlgXChaCha20Poly, func(id string, raw []byte) (cryptomat.SymKey, error) {
		return NewSymKey(id, raw)
	})
	cryptomat.RegisterSign(cryptomat.AlgEd25519, func(id string, raw []byte) (cryptomat.SignKey, error) {
		if len(raw) != ed25519.PrivateKeySize {
			return nil, sdkerr.Newf(sdkerr.KindSdk, "std: bad ed25519 private key length")
		}
		return NewSignKey(id, ed25519.PrivateKey(raw)), nil
	})
	cryptomat.RegisterVerify(cryptomat.AlgEd25519, func(id string, raw []byte) (cryptomat.VerifyKey, error) {
		if len(raw) != ed25519.PublicKeySize {
			return nil, sdkerr.Newf(sdkerr.KindSdk, "std: bad ed25519 public key length")
		}
		return NewVerifyKey(id, ed25519.PublicKey(raw)), nil
	})
	cryptomat.RegisterAsymPrivate(cryptomat.AlgX25519HkdfSha256, func(id string, raw []byte) (cryptomat.AsymPrivateKey, error) {
		return NewAsymPrivateKey(id, raw)
	})
	cryptomat.RegisterAsymPublic(cryptomat.AlgX25519HkdfSha256, func(id string, raw []byte) (cryptomat.AsymPublicKey, error) {
		return NewAsymPublicKey(id, raw)
	})
	cryptomat.RegisterHmac(cryptomat.AlgHmacBlake2b, func(raw []byte) (cryptomat.HmacKey, error) {
		return NewHmacKey(raw)
	})
	cryptomat.RegisterSortable(cryptomat.AlgOpeU64, func(raw []byte) (cryptomat.SortableKey, error) {
		return NewSortableKey(raw), nil
	})

	cryptomat.RegisterSymKeyGen(cryptomat.AlgXChaCha20Poly, func(id string) (cryptomat.SymKey, error) {
		return GenerateSymKey(id)
	})
	cryptomat.RegisterAsymKeyGen(cryptomat.AlgX25519HkdfSha256, func(id string) (cryptomat.AsymPrivateKey, cryptomat.AsymPublicKey, error) {
		return GenerateAsymKeyPair(id)
	})
	cryptomat.RegisterSignKeyGen(cryptomat.AlgEd25519, func(id string) (cryptomat.SignKey, cryptomat.VerifyKey, error) {
		return GenerateSignKey(id)
	})
	cryptomat.RegisterHmacGen(cryptomat.AlgHmacBlake2b, func() (cryptomat.HmacKey, error) {
		return GenerateHmacKey()
	})
	cryptomat.RegisterSortableGen(cryptomat.AlgOpeU64, func() (cryptomat.SortableKey, error) {
		return GenerateSortableKey()
	})
}
