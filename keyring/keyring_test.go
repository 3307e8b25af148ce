package keyring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentclose/sentc-go/ids"
)

type fakeEntry struct{ id ids.KeyId }

func (f fakeEntry) KeyIdOf() ids.KeyId { return f.id }

func TestKeyringAppendAndLookup(t *testing.T) {
	kr := New[fakeEntry]()
	require.Equal(t, 0, kr.Len())

	require.NoError(t, kr.Append(fakeEntry{id: "k1"}))
	require.NoError(t, kr.Append(fakeEntry{id: "k2"}))
	require.Equal(t, 2, kr.Len())

	got, ok := kr.GetById("k1")
	require.True(t, ok)
	require.Equal(t, ids.KeyId("k1"), got.id)

	_, ok = kr.GetById("missing")
	require.False(t, ok)
}

func TestKeyringRejectsDuplicateId(t *testing.T) {
	kr := New[fakeEntry]()
	require.NoError(t, kr.Append(fakeEntry{id: "k1"}))
	err := kr.Append(fakeEntry{id: "k1"})
	require.Error(t, err)
	require.Equal(t, 1, kr.Len())
}

func TestKeyringNewestDefaultsToFirstInserted(t *testing.T) {
	kr := New[fakeEntry]()
	require.NoError(t, kr.Append(fakeEntry{id: "k1"}))
	require.NoError(t, kr.Append(fakeEntry{id: "k2"}))

	newest, ok := kr.GetNewest()
	require.True(t, ok)
	require.Equal(t, ids.KeyId("k1"), newest.id)
	require.Equal(t, ids.KeyId("k1"), kr.NewestId())
}

func TestKeyringSetNewestId(t *testing.T) {
	kr := New[fakeEntry]()
	require.NoError(t, kr.Append(fakeEntry{id: "k1"}))
	require.NoError(t, kr.Append(fakeEntry{id: "k2"}))

	require.NoError(t, kr.SetNewestId("k2"))
	newest, ok := kr.GetNewest()
	require.True(t, ok)
	require.Equal(t, ids.KeyId("k2"), newest.id)

	err := kr.SetNewestId("unknown")
	require.Error(t, err)
	// newest pointer must not change on a failed set.
	newest, ok = kr.GetNewest()
	require.True(t, ok)
	require.Equal(t, ids.KeyId("k2"), newest.id)
}

func TestKeyringAllIsASnapshotCopy(t *testing.T) {
	kr := New[fakeEntry]()
	require.NoError(t, kr.Append(fakeEntry{id: "k1"}))

	all := kr.All()
	require.Len(t, all, 1)
	all[0] = fakeEntry{id: "mutated"}

	// mutating the returned slice must not affect the keyring's own state.
	got, ok := kr.GetById("k1")
	require.True(t, ok)
	require.Equal(t, ids.KeyId("k1"), got.id)
}

func TestKeyringHas(t *testing.T) {
	kr := New[fakeEntry]()
	require.False(t, kr.Has("k1"))
	require.NoError(t, kr.Append(fakeEntry{id: "k1"}))
	require.True(t, kr.Has("k1"))
}

func TestKeyringEmptyGetNewest(t *testing.T) {
	kr := New[fakeEntry]()
	_, ok := kr.GetNewest()
	require.False(t, ok)
}
