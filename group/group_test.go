package group_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/cryptomat/std"
	"github.com/sentclose/sentc-go/group"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/keys"
)

func newTestGroup(t *testing.T) *group.Group {
	t.Helper()
	g := group.New("grp-1", nil, false, false, 1, 1, 0, false, nil, nil, "https://api.example.com", "token")

	symKey, err := std.GenerateSymKey("key-1")
	require.NoError(t, err)
	asymPriv, asymPub, err := std.GenerateAsymKeyPair("key-1")
	require.NoError(t, err)

	kv := group.KeyVersion{
		Id:   "key-1",
		Sym:  keys.Symmetric{Id: "key-1", Alg: cryptomat.AlgXChaCha20Poly, Key: symKey, Time: 1},
		Asym: keys.AsymKeyPair{Id: "key-1", Alg: cryptomat.AlgX25519HkdfSha256, Private: asymPriv, Public: asymPub},
		Time: 1,
	}
	require.NoError(t, g.Keys.Append(kv))

	hmacKey, err := std.GenerateHmacKey()
	require.NoError(t, err)
	g.HmacKeys = append(g.HmacKeys, keys.Hmac{Id: "hmac-1", Alg: cryptomat.AlgHmacBlake2b, Key: hmacKey})

	sortKey, err := std.GenerateSortableKey()
	require.NoError(t, err)
	g.SortableKeys = append(g.SortableKeys, keys.Sortable{Id: "sort-1", Alg: cryptomat.AlgOpeU64, Key: sortKey})

	return g
}

func TestGroupEncryptDecryptRawRoundTrip(t *testing.T) {
	g := newTestGroup(t)

	framed, err := g.EncryptRaw([]byte("secret message"))
	require.NoError(t, err)

	plain, err := g.DecryptRaw(framed, nil)
	require.NoError(t, err)
	require.Equal(t, "secret message", string(plain))
}

func TestGroupEncryptDecryptTextRoundTrip(t *testing.T) {
	g := newTestGroup(t)

	s, err := g.Encrypt([]byte("another message"))
	require.NoError(t, err)

	plain, err := g.Decrypt(s, nil)
	require.NoError(t, err)
	require.Equal(t, "another message", string(plain))
}

func TestGroupEncryptWithSignVerifies(t *testing.T) {
	g := newTestGroup(t)
	sign, verify, err := std.GenerateSignKey("sign-1")
	require.NoError(t, err)

	framed, err := g.EncryptRawWithSign([]byte("signed"), sign)
	require.NoError(t, err)

	plain, err := g.DecryptRaw(framed, verify)
	require.NoError(t, err)
	require.Equal(t, "signed", string(plain))
}

func TestGroupDecryptFailsWithWrongVerifyKey(t *testing.T) {
	g := newTestGroup(t)
	sign, _, err := std.GenerateSignKey("sign-1")
	require.NoError(t, err)
	_, wrongVerify, err := std.GenerateSignKey("sign-2")
	require.NoError(t, err)

	framed, err := g.EncryptRawWithSign([]byte("signed"), sign)
	require.NoError(t, err)

	_, err = g.DecryptRaw(framed, wrongVerify)
	require.Error(t, err)
}

func TestGroupDecryptMissingKeyReturnsKeyRequired(t *testing.T) {
	g := newTestGroup(t)
	framed, err := g.EncryptRaw([]byte("data"))
	require.NoError(t, err)

	other := group.New("grp-2", nil, false, false, 1, 1, 0, false, nil, nil, "https://api.example.com", "token")
	_, err = other.DecryptRaw(framed, nil)
	require.Error(t, err)
}

func TestCreateSearchFullEqualityProducesOneToken(t *testing.T) {
	g := newTestGroup(t)
	idx, err := g.CreateSearch([]byte("alice@example.com"), true, nil)
	require.NoError(t, err)
	require.Len(t, idx.Tokens, 1)

	token, err := g.Search([]byte("alice@example.com"))
	require.NoError(t, err)
	require.Equal(t, idx.Tokens[0], token)
}

func TestCreateSearchPrefixProducesGrowingTokens(t *testing.T) {
	g := newTestGroup(t)
	limit := 3
	idx, err := g.CreateSearch([]byte("alice"), false, &limit)
	require.NoError(t, err)
	require.Len(t, idx.Tokens, 3)

	// each prefix token must be reproducible via Search on that same prefix.
	for n := 1; n <= limit; n++ {
		token, err := g.Search([]byte("alice"[:n]))
		require.NoError(t, err)
		require.Equal(t, idx.Tokens[n-1], token)
	}
}

func TestCreateSearchPrefixTokenPerByte(t *testing.T) {
	g := newTestGroup(t)

	// multi-byte characters contribute one token per encoded byte, so
	// this 39-byte string yields 39 prefix tokens.
	input := "123*+^êéèüöß@€&$ 👍 🚀 😎"
	require.Len(t, input, 39)

	idx, err := g.CreateSearch([]byte(input), false, nil)
	require.NoError(t, err)
	require.Len(t, idx.Tokens, 39)

	full, err := g.CreateSearch([]byte(input), true, nil)
	require.NoError(t, err)
	require.Len(t, full.Tokens, 1)

	token, err := g.Search([]byte("123"))
	require.NoError(t, err)
	require.Contains(t, idx.Tokens, token)
}

func TestSearchTokensDeterministicAcrossGroupsSharingKey(t *testing.T) {
	g1 := newTestGroup(t)
	g2 := group.New("grp-2", nil, false, false, 1, 1, 0, false, nil, nil, "https://api.example.com", "token")
	g2.HmacKeys = append(g2.HmacKeys, g1.HmacKeys[0])

	t1, err := g1.Search([]byte("shared query"))
	require.NoError(t, err)
	t2, err := g2.Search([]byte("shared query"))
	require.NoError(t, err)
	require.Equal(t, t1, t2)

	i1, err := g1.CreateSearch([]byte("shared data"), true, nil)
	require.NoError(t, err)
	i2, err := g2.CreateSearch([]byte("shared data"), true, nil)
	require.NoError(t, err)
	require.Equal(t, i1.Tokens, i2.Tokens)
}

func TestEncryptSortableNumberPreservesOrder(t *testing.T) {
	g := newTestGroup(t)
	a, err := g.EncryptSortableNumber(1)
	require.NoError(t, err)
	b, err := g.EncryptSortableNumber(2)
	require.NoError(t, err)
	require.Less(t, a, b)

	// adjacent values at the top of the encodable domain must still be
	// ordered, and anything past it rejected rather than wrapped.
	x, err := g.EncryptSortableNumber(cryptomat.MaxSortableNumber - 1)
	require.NoError(t, err)
	y, err := g.EncryptSortableNumber(cryptomat.MaxSortableNumber)
	require.NoError(t, err)
	require.Less(t, x, y)

	_, err = g.EncryptSortableNumber(cryptomat.MaxSortableNumber + 1)
	require.Error(t, err)
}

func TestEncryptSortableStringPreservesOrderAtMaxSupportedLen(t *testing.T) {
	g := newTestGroup(t)
	a, err := g.EncryptSortableString("aXXXX", cryptomat.MaxSortableStringLen)
	require.NoError(t, err)
	z, err := g.EncryptSortableString("zXXXX", cryptomat.MaxSortableStringLen)
	require.NoError(t, err)
	require.Less(t, a, z)
}

func TestEncryptSortableStringSequenceStrictlyIncreasing(t *testing.T) {
	g1 := newTestGroup(t)
	g2 := group.New("grp-2", nil, false, false, 1, 1, 0, false, nil, nil, "https://api.example.com", "token")
	g2.SortableKeys = append(g2.SortableKeys, g1.SortableKeys[0])

	inputs := []string{"a", "az", "azzz", "b", "ba", "baaa", "o", "oe", "z", "zaaa"}
	var prev uint64
	for i, s := range inputs {
		v1, err := g1.EncryptSortableString(s, 4)
		require.NoError(t, err)
		v2, err := g2.EncryptSortableString(s, 4)
		require.NoError(t, err)
		require.Equal(t, v1, v2, "members sharing a key must agree on %q", s)
		if i > 0 {
			require.Greater(t, v1, prev, "%q must encode above its predecessor", s)
		}
		prev = v1
	}
}

func TestEncryptSortableStringRejectsMaxLenBeyondLimit(t *testing.T) {
	g := newTestGroup(t)
	_, err := g.EncryptSortableString("anything", cryptomat.MaxSortableStringLen+1)
	require.Error(t, err)
}

func TestGroupSerializationRoundTrip(t *testing.T) {
	g := newTestGroup(t)

	s, err := g.ToString()
	require.NoError(t, err)
	restored, err := group.FromString(s)
	require.NoError(t, err)

	require.Equal(t, g.GroupId, restored.GroupId)
	require.Equal(t, g.Keys.Len(), restored.Keys.Len())
	require.Equal(t, g.Keys.NewestId(), restored.Keys.NewestId())

	framed, err := g.EncryptRaw([]byte("persisted and back"))
	require.NoError(t, err)
	plain, err := restored.DecryptRaw(framed, nil)
	require.NoError(t, err)
	require.Equal(t, "persisted and back", string(plain))

	t1, err := g.Search([]byte("q"))
	require.NoError(t, err)
	t2, err := restored.Search([]byte("q"))
	require.NoError(t, err)
	require.Equal(t, t1, t2)

	v1, err := g.EncryptSortableNumber(42)
	require.NoError(t, err)
	v2, err := restored.EncryptSortableNumber(42)
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestAccessPathDirectByDefault(t *testing.T) {
	g := group.New("grp-1", nil, false, false, 1, 1, 0, false, nil, nil, "", "")
	res := g.AccessPath()
	require.Equal(t, "direct", res.Tag.String())
}

func TestAccessPathViaGroupAsMember(t *testing.T) {
	memberId := ids.GroupId("connected-1")
	g := group.New("grp-1", nil, true, false, 1, 1, 0, false, nil, &memberId, "", "")
	res := g.AccessPath()
	require.Equal(t, "via_group_as_member", res.Tag.String())
	require.Equal(t, "connected-1", res.AncestorId)
}
