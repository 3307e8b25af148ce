// Package user implements the User entity: per-device keys used only to
// unwrap the master user keys the server delivers, the user's own
// keyring of UserKeyVersions, JWT freshness tracking, and the staged
// register/login operations that produce a User.
package user

import (
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/keyring"
	"github.com/sentclose/sentc-go/keys"
	"github.com/sentclose/sentc-go/sdkerr"
)

// jwtStaleness is how far before the token's exp it is considered
// stale; check_jwt must fail in this window so the caller refreshes
// proactively instead of racing a request against expiry.
const jwtStaleness = 30 * time.Second

// KeyVersion is one version of a user's master keys: a symmetric
// "user-group" key plus the asymmetric and sign keypairs created
// alongside it, all sharing one KeyId. Created on registration and on
// every user key rotation; immutable once appended.
type KeyVersion struct {
	Id    ids.KeyId        `json:"id"`
	Group keys.Symmetric   `json:"group"`
	Asym  keys.AsymKeyPair `json:"asym"`
	Sign  keys.SignKeyPair `json:"sign"`
	Time  uint64           `json:"time"`
}

func (v KeyVersion) KeyIdOf() ids.KeyId { return v.Id }

// DeviceKeys are the per-device keys created at registration/device
// enrollment time and used exclusively to decrypt the master
// UserKeyVersions the server delivers on login — never to address
// ciphertext to the user, which always goes through the newest
// KeyVersion instead.
type DeviceKeys struct {
	Private        cryptomat.AsymPrivateKey
	Public         cryptomat.AsymPublicKey
	Sign           cryptomat.SignKey
	Verify         cryptomat.VerifyKey
	ExportedPublic []byte
	ExportedVerify []byte
}

// User is a logged-in device's view of one account: identity, JWTs,
// device keys, and the keyring of master keys. Reads take RLock;
// anything that rotates the JWT, appends a key version, or flips Mfa
// takes Lock.
type User struct {
	mu sync.RWMutex

	userId         ids.UserId
	userIdentifier string
	deviceId       ids.DeviceId

	jwt          string
	refreshToken string

	mfa bool

	Device DeviceKeys

	Keys     *keyring.Keyring[KeyVersion]
	HmacKeys []keys.Hmac

	BaseUrl  string
	AppToken string
}

// New constructs a User around an already-decrypted first key version,
// so a User is never observable with an empty keyring.
func New(userId ids.UserId, userIdentifier string, deviceId ids.DeviceId, jwtStr, refreshToken string, mfa bool,
	device DeviceKeys, firstKey KeyVersion, baseUrl, appToken string) (*User, error) {

	u := &User{
		userId:         userId,
		userIdentifier: userIdentifier,
		deviceId:       deviceId,
		jwt:            jwtStr,
		refreshToken:   refreshToken,
		mfa:            mfa,
		Device:         device,
		Keys:           keyring.New[KeyVersion](),
		BaseUrl:        baseUrl,
		AppToken:       appToken,
	}
	if err := u.Keys.Append(firstKey); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) UserId() ids.UserId     { return u.userId }
func (u *User) Identifier() string     { return u.userIdentifier }
func (u *User) DeviceId() ids.DeviceId { return u.deviceId }

func (u *User) Mfa() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.mfa
}

func (u *User) SetMfa(enabled bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mfa = enabled
}

// Jwt returns the current JWT without checking freshness; call
// CheckJwt first where staleness matters.
func (u *User) Jwt() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.jwt
}

func (u *User) RefreshToken() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.refreshToken
}

// CheckJwt evaluates JWT freshness under read-lock: it fails with
// JwtExpired when the token's exp is within jwtStaleness of now, even
// if the token has not technically expired yet.
func (u *User) CheckJwt() error {
	u.mu.RLock()
	tok := u.jwt
	u.mu.RUnlock()
	return checkJwtStaleness(tok)
}

func checkJwtStaleness(raw string) error {
	if raw == "" {
		return sdkerr.New(sdkerr.KindJwtExpired)
	}
	parsed, err := jwt.ParseSigned(raw)
	if err != nil {
		return sdkerr.Newf(sdkerr.KindJwtExpired, "malformed jwt: %v", err)
	}
	var claims jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return sdkerr.Newf(sdkerr.KindJwtExpired, "%v", err)
	}
	if claims.Expiry == nil {
		return nil
	}
	if time.Now().Add(jwtStaleness).After(claims.Expiry.Time()) {
		return sdkerr.New(sdkerr.KindJwtExpired)
	}
	return nil
}

// SetJwt replaces the JWT after a refresh; requires the write-lock.
func (u *User) SetJwt(jwtStr string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.jwt = jwtStr
}

func (u *User) SetRefreshToken(token string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.refreshToken = token
}

// GetNewestKey returns the most recent master KeyVersion.
func (u *User) GetNewestKey() (KeyVersion, bool) {
	return u.Keys.GetNewest()
}

func (u *User) GetNewestPublicKey() (cryptomat.AsymPublicKey, bool) {
	k, ok := u.GetNewestKey()
	if !ok {
		return nil, false
	}
	return k.Asym.Public, true
}

func (u *User) GetNewestSignKey() (cryptomat.SignKey, bool) {
	k, ok := u.GetNewestKey()
	if !ok {
		return nil, false
	}
	return k.Sign.Sign, true
}

// GetKeyVersion looks up a specific master key version by id.
func (u *User) GetKeyVersion(id ids.KeyId) (KeyVersion, bool) {
	return u.Keys.GetById(id)
}

// HasKey reports whether the master key version with the given id is
// already loaded.
func (u *User) HasKey(id string) bool {
	_, ok := u.Keys.GetById(ids.KeyId(id))
	return ok
}

// ExtendKey appends a freshly decrypted master key version, e.g. one
// fetched ahead of a group's access-path resolution or produced by a
// user key rotation. Keys delivered by the server are expected already
// decrypted by the caller using Device before this is called.
func (u *User) ExtendKey(v KeyVersion) error {
	return u.Keys.Append(v)
}

// SetNewestKeyId moves the newest-key pointer, e.g. once a user key
// rotation's new version has been decrypted and appended.
func (u *User) SetNewestKeyId(id ids.KeyId) error {
	return u.Keys.SetNewestId(id)
}

// AddHmacKey appends one searchable-index key already decrypted with a
// master key version's symmetric key.
func (u *User) AddHmacKey(h keys.Hmac) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.HmacKeys = append(u.HmacKeys, h)
}

// PrepareGroupKeysRef returns up to `pageSize` master symmetric keys
// starting at `page`, plus whether more pages remain — used to batch a
// multi-key group invite/device-registration payload the same way the
// server paginates group key fetches.
func (u *User) PrepareGroupKeysRef(page, pageSize int) ([]keys.Symmetric, bool) {
	all := u.Keys.All()
	start := page * pageSize
	if start >= len(all) {
		return nil, false
	}
	end := start + pageSize
	more := end < len(all)
	if end > len(all) {
		end = len(all)
	}
	out := make([]keys.Symmetric, 0, end-start)
	for _, v := range all[start:end] {
		out = append(out, v.Group)
	}
	return out, more
}
