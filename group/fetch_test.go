package group_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/cryptomat/std"
	"github.com/sentclose/sentc-go/group"
	"github.com/sentclose/sentc-go/keys"
	"github.com/sentclose/sentc-go/transport"
	"github.com/sentclose/sentc-go/user"
)

// fakeGroupApi is an in-memory transport.GroupApi double scripted with
// a single GroupOutData response; tests that only drive the decrypt
// engine don't need a full HTTP transcript.
type fakeGroupApi struct {
	out           transport.GroupOutData
	rotationInput transport.PrepareKeyRotationInput
	pending       []transport.KeyRotationInput
	finished      map[string][]byte
}

func (f *fakeGroupApi) FetchGroup(ctx context.Context, groupId, jwt string) (transport.GroupOutData, error) {
	return f.out, nil
}

func (f *fakeGroupApi) FetchGroupKeyPage(ctx context.Context, groupId, jwt, lastTime, lastId string) ([]transport.GroupKeyServerOutput, error) {
	return nil, nil
}

func (f *fakeGroupApi) FetchGroupKey(ctx context.Context, groupId, keyId, jwt string) (transport.GroupKeyServerOutput, error) {
	for _, k := range f.out.Keys {
		if k.GroupKeyId == keyId {
			return k, nil
		}
	}
	return transport.GroupKeyServerOutput{}, nil
}

func (f *fakeGroupApi) PrepareKeyRotation(ctx context.Context, groupId, jwt string, in transport.PrepareKeyRotationInput) (string, error) {
	f.rotationInput = in
	return "group-key-2", nil
}

func (f *fakeGroupApi) PollPendingRotations(ctx context.Context, groupId, jwt string) ([]transport.KeyRotationInput, error) {
	return f.pending, nil
}

func (f *fakeGroupApi) FinishKeyRotation(ctx context.Context, groupId, jwt, newGroupKeyId string, encryptedNewGroupKeyByOwnKey []byte) error {
	if f.finished == nil {
		f.finished = map[string][]byte{}
	}
	f.finished[newGroupKeyId] = encryptedNewGroupKeyByOwnKey
	return nil
}

func rawOfTest(t *testing.T, v cryptomat.RawExporter) []byte {
	t.Helper()
	return v.Raw()
}

func newTestUser(t *testing.T) *user.User {
	t.Helper()

	devPriv, devPub, err := std.GenerateAsymKeyPair("device-1")
	require.NoError(t, err)
	devSign, devVerify, err := std.GenerateSignKey("device-1")
	require.NoError(t, err)

	masterSym, err := std.GenerateSymKey("user-key-1")
	require.NoError(t, err)
	masterAsymPriv, masterAsymPub, err := std.GenerateAsymKeyPair("user-key-1")
	require.NoError(t, err)
	masterSignPriv, masterSignVerify, err := std.GenerateSignKey("user-key-1")
	require.NoError(t, err)

	firstKey := user.KeyVersion{
		Id:   "user-key-1",
		Group: keys.Symmetric{Id: "user-key-1", Alg: cryptomat.AlgXChaCha20Poly, Key: masterSym},
		Asym: keys.AsymKeyPair{Id: "user-key-1", Alg: cryptomat.AlgX25519HkdfSha256, Private: masterAsymPriv, Public: masterAsymPub},
		Sign: keys.SignKeyPair{Id: "user-key-1", Alg: cryptomat.AlgEd25519, Sign: masterSignPriv, Verify: masterSignVerify},
	}

	usr, err := user.New("user-1", "alice", "device-1", "jwt-token", "refresh-token", false,
		user.DeviceKeys{Private: devPriv, Public: devPub, Sign: devSign, Verify: devVerify},
		firstKey, "https://api.example.com", "token")
	require.NoError(t, err)
	return usr
}

// groupKeyFixture builds one GroupKeyServerOutput sealed to usr's
// "user-key-1" master keypair, exactly as the server would deliver it
// for a directly-owned group.
func groupKeyFixture(t *testing.T, usr *user.User) transport.GroupKeyServerOutput {
	t.Helper()

	masterKv, ok := usr.GetNewestKey()
	require.True(t, ok)

	groupSym, err := std.GenerateSymKey("group-key-1")
	require.NoError(t, err)
	groupAsymPriv, groupAsymPub, err := std.GenerateAsymKeyPair("group-key-1")
	require.NoError(t, err)

	encGroupKey, err := masterKv.Asym.Public.Encrypt(rawOfTest(t, groupSym))
	require.NoError(t, err)

	_, encPrivGroupKey, err := groupSym.EncryptRaw(rawOfTest(t, groupAsymPriv))
	require.NoError(t, err)

	return transport.GroupKeyServerOutput{
		GroupKeyId:               "group-key-1",
		UserPublicKeyId:          "user-key-1",
		Time:                     1,
		EncryptedGroupKey:        encGroupKey,
		EncryptedPrivateGroupKey: encPrivGroupKey,
		PublicGroupKey:           rawOfTest(t, groupAsymPub),
		KeyPairId:                "group-key-1",
		GroupKeyAlg:              string(cryptomat.AlgXChaCha20Poly),
		KeyPairAlg:               string(cryptomat.AlgX25519HkdfSha256),
	}
}

func TestPrepareAndDoneFetchGroupDirectAccess(t *testing.T) {
	usr := newTestUser(t)
	gk := groupKeyFixture(t, usr)

	api := &fakeGroupApi{out: transport.GroupOutData{
		GroupId: "grp-1",
		Keys:    []transport.GroupKeyServerOutput{gk},
	}}

	data, res, err := group.PrepareFetchGroup(context.Background(), api, "grp-1", usr.Jwt(), usr, nil, false)
	require.NoError(t, err)
	require.Equal(t, group.FetchOk, res.Kind)

	g, err := group.DoneFetchGroup(data, usr, nil, "https://api.example.com", "token", nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, g.Keys.Len())

	framed, err := g.EncryptRaw([]byte("hello from a newly fetched group"))
	require.NoError(t, err)
	plain, err := g.DecryptRaw(framed, nil)
	require.NoError(t, err)
	require.Equal(t, "hello from a newly fetched group", string(plain))
}

func TestPrepareFetchGroupMissingUserKeyReported(t *testing.T) {
	usr := newTestUser(t)
	gk := groupKeyFixture(t, usr)
	gk.UserPublicKeyId = "user-key-does-not-exist"

	api := &fakeGroupApi{out: transport.GroupOutData{
		GroupId: "grp-1",
		Keys:    []transport.GroupKeyServerOutput{gk},
	}}

	_, res, err := group.PrepareFetchGroup(context.Background(), api, "grp-1", usr.Jwt(), usr, nil, false)
	require.NoError(t, err)
	require.Equal(t, group.FetchMissingUserKeys, res.Kind)
	require.Equal(t, []string{"user-key-does-not-exist"}, res.MissingIds)
}

func TestPrepareFetchGroupNoKeysIsError(t *testing.T) {
	api := &fakeGroupApi{out: transport.GroupOutData{GroupId: "grp-1"}}
	_, _, err := group.PrepareFetchGroup(context.Background(), api, "grp-1", "jwt", nil, nil, false)
	require.Error(t, err)
}

func TestPrepareAndDoneFetchSingleGroupKey(t *testing.T) {
	usr := newTestUser(t)
	gk := groupKeyFixture(t, usr)
	api := &fakeGroupApi{out: transport.GroupOutData{GroupId: "grp-1", Keys: []transport.GroupKeyServerOutput{gk}}}

	data, _, err := group.PrepareFetchGroup(context.Background(), api, "grp-1", usr.Jwt(), usr, nil, false)
	require.NoError(t, err)
	g, err := group.DoneFetchGroup(data, usr, nil, "https://api.example.com", "token", nil, false)
	require.NoError(t, err)

	gk2 := groupKeyFixture(t, usr)
	gk2.GroupKeyId = "group-key-2"
	gk2.KeyPairId = "group-key-2"
	api.out.Keys = append(api.out.Keys, gk2)

	k, res, err := group.PrepareFetchGroupKey(context.Background(), api, g, "group-key-2", usr.Jwt(), usr, nil)
	require.NoError(t, err)
	require.Equal(t, group.FetchOk, res.Kind)
	require.NoError(t, group.DoneFetchGroupKey(g, k, usr, nil))
	require.True(t, g.Keys.Has("group-key-2"))

	// a key sealed to a user key version this client has never seen is
	// reported as exactly that one missing id.
	gk3 := groupKeyFixture(t, usr)
	gk3.GroupKeyId = "group-key-3"
	gk3.UserPublicKeyId = "user-key-rotated-away"
	api.out.Keys = append(api.out.Keys, gk3)

	_, res, err = group.PrepareFetchGroupKey(context.Background(), api, g, "group-key-3", usr.Jwt(), usr, nil)
	require.NoError(t, err)
	require.Equal(t, group.FetchMissingUserKeys, res.Kind)
	require.Equal(t, []string{"user-key-rotated-away"}, res.MissingIds)
}

func TestPrepareKeyRotationConvergesForInitiator(t *testing.T) {
	usr := newTestUser(t)
	gk := groupKeyFixture(t, usr)

	api := &fakeGroupApi{out: transport.GroupOutData{GroupId: "grp-1", Keys: []transport.GroupKeyServerOutput{gk}}}
	data, res, err := group.PrepareFetchGroup(context.Background(), api, "grp-1", usr.Jwt(), usr, nil, false)
	require.NoError(t, err)
	require.Equal(t, group.FetchOk, res.Kind)
	g, err := group.DoneFetchGroup(data, usr, nil, "https://api.example.com", "token", nil, false)
	require.NoError(t, err)

	// PrepareKeyRotation re-fetches its own new key via FetchGroupKey, so
	// the fake must be able to answer that lookup once the rotation
	// posts a new key version the caller's own keyring can decrypt.
	newKv := groupKeyFixture(t, usr)
	newKv.GroupKeyId = "group-key-2"
	api.out.Keys = append(api.out.Keys, newKv)
	api.rotationInput = transport.PrepareKeyRotationInput{}

	rotated, err := group.PrepareKeyRotation(context.Background(), api, g, usr, nil,
		cryptomat.AlgXChaCha20Poly, cryptomat.AlgX25519HkdfSha256, nil)
	require.NoError(t, err)
	require.Equal(t, 2, rotated.Keys.Len())
	require.True(t, rotated.Keys.Has("group-key-2"))
}
