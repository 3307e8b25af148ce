// Package cryptomat is the crypto primitive facade: a small interface
// set that every concrete algorithm family (std, fipsprofile) satisfies,
// plus the EncryptedHead wire framing shared by every encrypt/decrypt
// call in the SDK. Nothing in this package talks to the network or the
// keyring; it only wraps raw bytes.
package cryptomat

import (
	"encoding/base64"
	"encoding/json"

	"github.com/sentclose/sentc-go/sdkerr"
)

// Algorithm tags the concrete primitive backing a key container. The
// tag travels with every container and every EncryptedHead so that a
// decrypting peer, regardless of which family it was compiled with,
// can select the matching implementation.
type Algorithm string

const (
	AlgAesGcm          Algorithm = "aes-gcm-256"
	AlgXChaCha20Poly    Algorithm = "xchacha20-poly1305"
	AlgEd25519         Algorithm = "ed25519"
	AlgRsa2048Oaep      Algorithm = "rsa2048-oaep"
	AlgX25519HkdfSha256 Algorithm = "x25519-hkdf-sha256"
	AlgRsa2048Sign      Algorithm = "rsa2048-rs256"
	AlgHmacBlake2b      Algorithm = "hmac-blake2b"
	AlgHmacSha256       Algorithm = "hmac-sha256"
	AlgOpeU64           Algorithm = "ope-u64"
	AlgNonSortable      Algorithm = "non-sortable"
	AlgArgon2id         Algorithm = "argon2id"
	AlgScrypt           Algorithm = "scrypt"
)

// SymKey is a symmetric AEAD key able to produce and consume framed
// ciphertext, with or without AAD. Decrypt checks a detached signature
// carried in the head when a VerifyKey is given; inline signatures
// (appended to the ciphertext) are neither produced nor read.
type SymKey interface {
	Algorithm() Algorithm
	KeyId() string

	EncryptRaw(data []byte) (EncryptedHead, []byte, error)
	EncryptRawWithAad(data, aad []byte) (EncryptedHead, []byte, error)
	DecryptRaw(head EncryptedHead, ciphertext []byte, verify VerifyKey) ([]byte, error)
	DecryptRawWithAad(head EncryptedHead, ciphertext, aad []byte, verify VerifyKey) ([]byte, error)
}

// SignKey is a private signing key used to attach a detached signature
// to an EncryptedHead.
type SignKey interface {
	Algorithm() Algorithm
	KeyId() string
	Sign(data []byte) (sig []byte, err error)
}

// VerifyKey verifies a signature produced by the matching SignKey. A
// nil VerifyKey means "verification not requested"; callers check for
// nil before dereferencing.
type VerifyKey interface {
	Algorithm() Algorithm
	KeyId() string
	Verify(data, sig []byte) (ok bool, err error)
}

// AsymPrivateKey decrypts data that was sealed to the matching public
// key (used for the non-registered-key exchange and user-to-user
// asymmetric encryption).
type AsymPrivateKey interface {
	Algorithm() Algorithm
	KeyId() string
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AsymPublicKey seals data so only the matching AsymPrivateKey can open
// it.
type AsymPublicKey interface {
	Algorithm() Algorithm
	KeyId() string
	Encrypt(data []byte) ([]byte, error)
}

// HmacKey produces deterministic blind-index tokens for the searchable
// index.
type HmacKey interface {
	Algorithm() Algorithm
	Tag(data []byte) []byte
}

// SortableKey order-preserving-encodes integers and bounded-length
// strings for server-side sort/range queries. Both operations reject
// inputs outside the encodable domain rather than wrapping around,
// since a wrapped value would sort below smaller inputs.
type SortableKey interface {
	Algorithm() Algorithm
	EncryptNumber(n uint64) (uint64, error)
	EncryptString(s string, maxLen int) (uint64, error)
}

// MaxSortableStringLen bounds how many runes EncryptString can fold
// into one uint64 while keeping every character's contribution
// distinguishable from its neighbors'. Callers must reject a larger
// maxLen rather than pass it through, since no SortableKey
// implementation can preserve ordering once the per-character fields
// stop fitting in 64 bits.
const MaxSortableStringLen = 7

// MaxSortableNumber bounds EncryptNumber's input domain. The encoded
// value must leave room for the key-derived offset below the input's
// scaled contribution; past this bound the multiplication would wrap
// mod 2^64 and invert the ordering, so implementations reject larger
// inputs instead.
const MaxSortableNumber = 1<<43 - 1

// PwHasher derives a login/master-key-unlock secret from a password. It
// is intentionally slow; std and fipsprofile back it with different
// primitives (argon2id vs scrypt) but expose the same shape.
type PwHasher interface {
	Algorithm() Algorithm
	Derive(password string, salt []byte) ([]byte, error)
	SaltSize() int
}

// SignHead travels inside EncryptedHead when a signature is attached.
type SignHead struct {
	Id        string `json:"id"`
	Alg       string `json:"alg"`
	Detached  bool   `json:"detached,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

// EncryptedHead is the small framing struct that precedes every
// ciphertext this SDK produces. Id names the key version to decrypt
// with; Sign, when present, carries the signer's key id/algorithm and
// the detached signature bytes. Every signer in this SDK sets Detached;
// no primitive appends a signature to the ciphertext itself.
type EncryptedHead struct {
	Id   string    `json:"id"`
	Sign *SignHead `json:"sign,omitempty"`
}

// Encode serializes a head to its wire form: a JSON object. Framed
// binary output is head-length-prefixed; framed string output is the
// head JSON-encoded, base64-joined with the ciphertext by a single '.'.
func (h EncryptedHead) Encode() ([]byte, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return nil, sdkerr.Newf(sdkerr.KindJsonToStringFailed, "%v", err)
	}
	return b, nil
}

// SplitHeadAndData parses the framed binary form produced by the raw
// encrypt operations: a 4-byte big-endian length prefix, the JSON head,
// then the ciphertext.
func SplitHeadAndData(framed []byte) (EncryptedHead, []byte, error) {
	if len(framed) < 4 {
		return EncryptedHead{}, nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "framed data too short")
	}
	n := int(framed[0])<<24 | int(framed[1])<<16 | int(framed[2])<<8 | int(framed[3])
	if len(framed) < 4+n {
		return EncryptedHead{}, nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "framed head length exceeds buffer")
	}
	var head EncryptedHead
	if err := json.Unmarshal(framed[4:4+n], &head); err != nil {
		return EncryptedHead{}, nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	return head, framed[4+n:], nil
}

// JoinHeadAndData is the inverse of SplitHeadAndData.
func JoinHeadAndData(head EncryptedHead, data []byte) ([]byte, error) {
	hb, err := head.Encode()
	if err != nil {
		return nil, err
	}
	n := len(hb)
	out := make([]byte, 4+n+len(data))
	out[0] = byte(n >> 24)
	out[1] = byte(n >> 16)
	out[2] = byte(n >> 8)
	out[3] = byte(n)
	copy(out[4:], hb)
	copy(out[4+n:], data)
	return out, nil
}

// SplitHeadAndEncryptedString parses the framed text form: head-json,
// '.', base64url(ciphertext).
func SplitHeadAndEncryptedString(s string) (EncryptedHead, []byte, error) {
	i := indexByte(s, '.')
	if i < 0 {
		return EncryptedHead{}, nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "malformed framed string")
	}
	var head EncryptedHead
	if err := json.Unmarshal([]byte(s[:i]), &head); err != nil {
		return EncryptedHead{}, nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	data, err := base64.RawURLEncoding.DecodeString(s[i+1:])
	if err != nil {
		return EncryptedHead{}, nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	return head, data, nil
}

// JoinHeadAndEncryptedString is the inverse of SplitHeadAndEncryptedString.
func JoinHeadAndEncryptedString(head EncryptedHead, data []byte) (string, error) {
	hb, err := head.Encode()
	if err != nil {
		return "", err
	}
	return string(hb) + "." + base64.RawURLEncoding.EncodeToString(data), nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
