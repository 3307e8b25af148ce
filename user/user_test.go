package user_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/cryptomat/std"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/keys"
	"github.com/sentclose/sentc-go/user"
)

func newTestKeyVersion(t *testing.T, id string) user.KeyVersion {
	t.Helper()
	sym, err := std.GenerateSymKey(id)
	require.NoError(t, err)
	asymPriv, asymPub, err := std.GenerateAsymKeyPair(id)
	require.NoError(t, err)
	signPriv, signVerify, err := std.GenerateSignKey(id)
	require.NoError(t, err)

	return user.KeyVersion{
		Id:   ids.KeyId(id),
		Group: keys.Symmetric{Id: ids.KeyId(id), Alg: cryptomat.AlgXChaCha20Poly, Key: sym},
		Asym: keys.AsymKeyPair{Id: ids.KeyId(id), Alg: cryptomat.AlgX25519HkdfSha256, Private: asymPriv, Public: asymPub},
		Sign: keys.SignKeyPair{Id: ids.KeyId(id), Alg: cryptomat.AlgEd25519, Sign: signPriv, Verify: signVerify},
	}
}

func newTestUser(t *testing.T, jwtStr string) *user.User {
	t.Helper()
	devPriv, devPub, err := std.GenerateAsymKeyPair("device-1")
	require.NoError(t, err)
	devSign, devVerify, err := std.GenerateSignKey("device-1")
	require.NoError(t, err)

	usr, err := user.New("user-1", "alice", "device-1", jwtStr, "refresh-1", false,
		user.DeviceKeys{Private: devPriv, Public: devPub, Sign: devSign, Verify: devVerify},
		newTestKeyVersion(t, "user-key-1"), "https://api.example.com", "token")
	require.NoError(t, err)
	return usr
}

// fakeJwt builds a structurally valid (but unverified-signature) compact
// JWS carrying only an exp claim, since CheckJwt reads claims via
// UnsafeClaimsWithoutVerification and never checks the signature itself.
func fakeJwt(t *testing.T, expiry time.Time) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]int64{"exp": expiry.Unix()})
	require.NoError(t, err)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("sig"))
}

func TestNewRequiresNonEmptyFirstKeyAndExposesIdentity(t *testing.T) {
	usr := newTestUser(t, "")
	require.Equal(t, 1, usr.Keys.Len())
	require.Equal(t, ids.UserId("user-1"), usr.UserId())
	require.Equal(t, "alice", usr.Identifier())
	require.Equal(t, ids.DeviceId("device-1"), usr.DeviceId())
}

func TestMfaToggle(t *testing.T) {
	usr := newTestUser(t, "")
	require.False(t, usr.Mfa())
	usr.SetMfa(true)
	require.True(t, usr.Mfa())
}

func TestJwtAndRefreshTokenAccessors(t *testing.T) {
	usr := newTestUser(t, "")
	usr.SetJwt("new-jwt")
	require.Equal(t, "new-jwt", usr.Jwt())
	usr.SetRefreshToken("new-refresh")
	require.Equal(t, "new-refresh", usr.RefreshToken())
}

func TestCheckJwtFailsWhenEmpty(t *testing.T) {
	usr := newTestUser(t, "")
	require.Error(t, usr.CheckJwt())
}

func TestCheckJwtFailsWhenWithinStalenessWindow(t *testing.T) {
	usr := newTestUser(t, fakeJwt(t, time.Now().Add(10*time.Second)))
	require.Error(t, usr.CheckJwt())
}

func TestCheckJwtPassesWellBeforeExpiry(t *testing.T) {
	usr := newTestUser(t, fakeJwt(t, time.Now().Add(time.Hour)))
	require.NoError(t, usr.CheckJwt())
}

func TestGetNewestKeyAndExtendKey(t *testing.T) {
	usr := newTestUser(t, "")
	kv, ok := usr.GetNewestKey()
	require.True(t, ok)
	require.Equal(t, ids.KeyId("user-key-1"), kv.Id)

	second := newTestKeyVersion(t, "user-key-2")
	require.NoError(t, usr.ExtendKey(second))
	require.NoError(t, usr.SetNewestKeyId("user-key-2"))

	newest, ok := usr.GetNewestKey()
	require.True(t, ok)
	require.Equal(t, ids.KeyId("user-key-2"), newest.Id)

	found, ok := usr.GetKeyVersion("user-key-1")
	require.True(t, ok)
	require.Equal(t, ids.KeyId("user-key-1"), found.Id)
}

func TestGetNewestPublicKeyAndSignKey(t *testing.T) {
	usr := newTestUser(t, "")
	pub, ok := usr.GetNewestPublicKey()
	require.True(t, ok)
	require.NotNil(t, pub)

	sign, ok := usr.GetNewestSignKey()
	require.True(t, ok)
	require.NotNil(t, sign)
}

func TestUserSymmetricEncryptDecryptRoundTrip(t *testing.T) {
	usr := newTestUser(t, "")

	framed, err := usr.EncryptRaw([]byte("note to self"))
	require.NoError(t, err)
	plain, err := usr.DecryptRaw(framed, nil)
	require.NoError(t, err)
	require.Equal(t, "note to self", string(plain))

	s, err := usr.Encrypt([]byte("text form"))
	require.NoError(t, err)
	plain, err = usr.Decrypt(s, nil)
	require.NoError(t, err)
	require.Equal(t, "text form", string(plain))
}

func TestUserToUserAsymmetricEncryptDecrypt(t *testing.T) {
	alice := newTestUser(t, "")
	bob := newTestUser(t, "")

	aliceKv, ok := alice.GetNewestKey()
	require.True(t, ok)
	bobKv, ok := bob.GetNewestKey()
	require.True(t, ok)

	framed, err := alice.EncryptAsym([]byte("hello bob"), bobKv.Asym.Public, aliceKv.Sign.Sign)
	require.NoError(t, err)

	// a present signature must not fail decryption when verification is
	// not requested.
	plain, err := bob.DecryptAsym(framed, nil)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(plain))

	plain, err = bob.DecryptAsym(framed, aliceKv.Sign.Verify)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(plain))

	// same key id, different key material: the id check passes but the
	// signature itself must not.
	_, wrongVerify, err := std.GenerateSignKey("user-key-1")
	require.NoError(t, err)
	_, err = bob.DecryptAsym(framed, wrongVerify)
	require.Error(t, err)
}

func TestUserSerializationRoundTrip(t *testing.T) {
	usr := newTestUser(t, "jwt-1")
	require.NoError(t, usr.ExtendKey(newTestKeyVersion(t, "user-key-2")))
	require.NoError(t, usr.SetNewestKeyId("user-key-2"))

	s, err := usr.ToString()
	require.NoError(t, err)

	restored, err := user.FromString(s)
	require.NoError(t, err)
	require.Equal(t, usr.UserId(), restored.UserId())
	require.Equal(t, usr.Identifier(), restored.Identifier())
	require.Equal(t, usr.DeviceId(), restored.DeviceId())
	require.Equal(t, usr.Jwt(), restored.Jwt())
	require.Equal(t, usr.RefreshToken(), restored.RefreshToken())
	require.Equal(t, usr.Keys.Len(), restored.Keys.Len())
	require.Equal(t, ids.KeyId("user-key-2"), restored.Keys.NewestId())

	// the restored keys must interoperate with the originals, not just
	// compare equal field by field.
	kv, ok := usr.GetNewestKey()
	require.True(t, ok)
	ct, err := kv.Asym.Public.Encrypt([]byte("cross-instance"))
	require.NoError(t, err)
	rkv, ok := restored.GetNewestKey()
	require.True(t, ok)
	plain, err := rkv.Asym.Private.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "cross-instance", string(plain))
}

func TestPrepareGroupKeysRefPaginates(t *testing.T) {
	usr := newTestUser(t, "")
	require.NoError(t, usr.ExtendKey(newTestKeyVersion(t, "user-key-2")))
	require.NoError(t, usr.ExtendKey(newTestKeyVersion(t, "user-key-3")))

	page0, more := usr.PrepareGroupKeysRef(0, 2)
	require.Len(t, page0, 2)
	require.True(t, more)

	page1, more := usr.PrepareGroupKeysRef(1, 2)
	require.Len(t, page1, 1)
	require.False(t, more)

	page2, more := usr.PrepareGroupKeysRef(2, 2)
	require.Nil(t, page2)
	require.False(t, more)
}
