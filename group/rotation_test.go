package group_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/cryptomat/std"
	"github.com/sentclose/sentc-go/group"
	"github.com/sentclose/sentc-go/transport"
	"github.com/sentclose/sentc-go/user"
)

// buildRotation forges the server's view of one pending rotation from
// prev to a fresh key version, with the ephemeral key double-wrapped
// the way the server delivers it: sealed under prev's group key by the
// initiator, then under usr's newest public key by the server.
func buildRotation(t *testing.T, usr *user.User, prev group.KeyVersion, newId string,
	sign cryptomat.SignKey) (transport.KeyRotationInput, transport.GroupKeyServerOutput) {
	t.Helper()

	masterKv, ok := usr.GetNewestKey()
	require.True(t, ok)

	newSym, err := std.GenerateSymKey(newId)
	require.NoError(t, err)
	newPriv, newPub, err := std.GenerateAsymKeyPair(newId)
	require.NoError(t, err)
	rawNew := rawOfTest(t, newSym)

	ephKey, err := std.GenerateSymKey("eph")
	require.NoError(t, err)
	_, encEphByPrev, err := prev.Sym.Key.EncryptRaw(rawOfTest(t, ephKey))
	require.NoError(t, err)
	encEphWrapped, err := masterKv.Asym.Public.Encrypt(encEphByPrev)
	require.NoError(t, err)
	_, encNewByEph, err := ephKey.EncryptRaw(rawNew)
	require.NoError(t, err)

	in := transport.KeyRotationInput{
		NewGroupKeyId:                         newId,
		PreviousGroupKeyId:                    string(prev.Id),
		EncryptedEphKeyKeyId:                  string(masterKv.Id),
		EncryptedEphKeyByGroupKeyAndPublicKey: encEphWrapped,
		EncryptedNewGroupKeyByEphKey:          encNewByEph,
		NewGroupKeyAlg:                        string(cryptomat.AlgXChaCha20Poly),
	}
	if sign != nil {
		sig, err := sign.Sign(encNewByEph)
		require.NoError(t, err)
		signerId := "signer-user"
		signKeyId := sign.KeyId()
		in.Signature = sig
		in.SignedByUserId = &signerId
		in.SignedByUserSignKeyId = &signKeyId
	}

	encGroupKey, err := masterKv.Asym.Public.Encrypt(rawNew)
	require.NoError(t, err)
	_, encPrivGroupKey, err := newSym.EncryptRaw(rawOfTest(t, newPriv))
	require.NoError(t, err)

	out := transport.GroupKeyServerOutput{
		GroupKeyId:               newId,
		UserPublicKeyId:          string(masterKv.Id),
		Time:                     2,
		EncryptedGroupKey:        encGroupKey,
		EncryptedPrivateGroupKey: encPrivGroupKey,
		PublicGroupKey:           rawOfTest(t, newPub),
		KeyPairId:                newId,
		GroupKeyAlg:              string(cryptomat.AlgXChaCha20Poly),
		KeyPairAlg:               string(cryptomat.AlgX25519HkdfSha256),
	}
	return in, out
}

func fetchedTestGroup(t *testing.T, usr *user.User, api *fakeGroupApi) *group.Group {
	t.Helper()
	data, res, err := group.PrepareFetchGroup(context.Background(), api, "grp-1", usr.Jwt(), usr, nil, false)
	require.NoError(t, err)
	require.Equal(t, group.FetchOk, res.Kind)
	g, err := group.DoneFetchGroup(data, usr, nil, "https://api.example.com", "token", nil, false)
	require.NoError(t, err)
	return g
}

func TestPrepareFinishKeyRotationEmpty(t *testing.T) {
	usr := newTestUser(t)
	api := &fakeGroupApi{out: transport.GroupOutData{GroupId: "grp-1", Keys: []transport.GroupKeyServerOutput{groupKeyFixture(t, usr)}}}
	g := fetchedTestGroup(t, usr, api)

	res, err := group.PrepareFinishKeyRotation(context.Background(), api, g, usr, nil)
	require.NoError(t, err)
	require.Equal(t, group.RotationEmpty, res.Kind)
}

func TestPrepareFinishKeyRotationReportsMissingPrerequisites(t *testing.T) {
	usr := newTestUser(t)
	api := &fakeGroupApi{out: transport.GroupOutData{GroupId: "grp-1", Keys: []transport.GroupKeyServerOutput{groupKeyFixture(t, usr)}}}
	g := fetchedTestGroup(t, usr, api)

	api.pending = []transport.KeyRotationInput{{
		NewGroupKeyId:        "group-key-9",
		PreviousGroupKeyId:   "group-key-8",
		EncryptedEphKeyKeyId: "user-key-gone",
	}}

	res, err := group.PrepareFinishKeyRotation(context.Background(), api, g, usr, nil)
	require.NoError(t, err)
	require.Equal(t, group.RotationMissingKeys, res.Kind)
	require.Equal(t, []string{"group-key-8"}, res.MissingGroupKeys)
	require.Equal(t, []string{"user-key-gone"}, res.MissingUserPrivateKeys)
	require.Len(t, res.Rotations, 1)
}

func TestDoneKeyRotationParticipantConverges(t *testing.T) {
	usr := newTestUser(t)
	api := &fakeGroupApi{out: transport.GroupOutData{GroupId: "grp-1", Keys: []transport.GroupKeyServerOutput{groupKeyFixture(t, usr)}}}
	g := fetchedTestGroup(t, usr, api)

	prev, ok := g.GetGroupKey("group-key-1")
	require.True(t, ok)
	rot, out := buildRotation(t, usr, prev, "group-key-2", nil)
	api.pending = []transport.KeyRotationInput{rot}
	api.out.Keys = append(api.out.Keys, out)

	res, err := group.PrepareFinishKeyRotation(context.Background(), api, g, usr, nil)
	require.NoError(t, err)
	require.Equal(t, group.RotationOk, res.Kind)

	require.NoError(t, group.DoneKeyRotation(context.Background(), api, g, usr, nil, res.Rotations[0], nil))

	require.True(t, g.Keys.Has("group-key-2"))
	newest, ok := g.GetNewestKey()
	require.True(t, ok)
	require.Equal(t, "group-key-2", string(newest.Id))
	require.Contains(t, api.finished, "group-key-2")
}

func TestDoneKeyRotationVerifiesSignature(t *testing.T) {
	usr := newTestUser(t)
	api := &fakeGroupApi{out: transport.GroupOutData{GroupId: "grp-1", Keys: []transport.GroupKeyServerOutput{groupKeyFixture(t, usr)}}}
	g := fetchedTestGroup(t, usr, api)

	sign, verify, err := std.GenerateSignKey("rot-sign-1")
	require.NoError(t, err)
	_, wrongVerify, err := std.GenerateSignKey("rot-sign-2")
	require.NoError(t, err)

	prev, ok := g.GetGroupKey("group-key-1")
	require.True(t, ok)
	rot, out := buildRotation(t, usr, prev, "group-key-2", sign)
	api.out.Keys = append(api.out.Keys, out)

	err = group.DoneKeyRotation(context.Background(), api, g, usr, nil, rot, wrongVerify)
	require.Error(t, err)
	require.False(t, g.Keys.Has("group-key-2"))

	require.NoError(t, group.DoneKeyRotation(context.Background(), api, g, usr, nil, rot, verify))
	require.True(t, g.Keys.Has("group-key-2"))
}

func TestDoneKeyRotationSignedButVerifyNotRequested(t *testing.T) {
	usr := newTestUser(t)
	api := &fakeGroupApi{out: transport.GroupOutData{GroupId: "grp-1", Keys: []transport.GroupKeyServerOutput{groupKeyFixture(t, usr)}}}
	g := fetchedTestGroup(t, usr, api)

	sign, _, err := std.GenerateSignKey("rot-sign-1")
	require.NoError(t, err)

	prev, ok := g.GetGroupKey("group-key-1")
	require.True(t, ok)
	rot, out := buildRotation(t, usr, prev, "group-key-2", sign)
	api.out.Keys = append(api.out.Keys, out)

	// a present signature must not fail the rotation when no verify key
	// is supplied.
	require.NoError(t, group.DoneKeyRotation(context.Background(), api, g, usr, nil, rot, nil))
	require.True(t, g.Keys.Has("group-key-2"))
}

func TestFinishKeyRotationOutOfOrderConverges(t *testing.T) {
	usr := newTestUser(t)
	api := &fakeGroupApi{out: transport.GroupOutData{GroupId: "grp-1", Keys: []transport.GroupKeyServerOutput{groupKeyFixture(t, usr)}}}
	g := fetchedTestGroup(t, usr, api)

	prev, ok := g.GetGroupKey("group-key-1")
	require.True(t, ok)
	rot12, out2 := buildRotation(t, usr, prev, "group-key-2", nil)
	api.out.Keys = append(api.out.Keys, out2)

	// the second rotation chains off the key version the first one
	// produced, before this participant has seen it.
	kv2 := group.KeyVersion{Id: "group-key-2", Time: 2}
	{
		sym2, err := cryptomat.NewSymKey(cryptomat.AlgXChaCha20Poly, "group-key-2", decryptGroupKeyForTest(t, usr, out2))
		require.NoError(t, err)
		kv2.Sym.Key = sym2
	}
	rot23, out3 := buildRotation(t, usr, kv2, "group-key-3", nil)
	api.out.Keys = append(api.out.Keys, out3)

	// deliver v2→v3 first: its previous key is fetched inline, then the
	// v1→v2 rotation finds its new key already loaded and only submits.
	api.pending = []transport.KeyRotationInput{rot23, rot12}

	require.NoError(t, group.FinishKeyRotation(context.Background(), api, g, usr, nil, nil, 0))
	require.True(t, g.Keys.Has("group-key-2"))
	require.True(t, g.Keys.Has("group-key-3"))
	require.Contains(t, api.finished, "group-key-2")
	require.Contains(t, api.finished, "group-key-3")
}

// decryptGroupKeyForTest opens a GroupKeyServerOutput the way the fetch
// engine would, returning the raw symmetric key bytes.
func decryptGroupKeyForTest(t *testing.T, usr *user.User, out transport.GroupKeyServerOutput) []byte {
	t.Helper()
	kv, ok := usr.GetKeyVersion("user-key-1")
	require.True(t, ok)
	raw, err := kv.Asym.Private.Decrypt(out.EncryptedGroupKey)
	require.NoError(t, err)
	return raw
}
