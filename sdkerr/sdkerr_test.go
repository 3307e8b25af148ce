package sdkerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsComparesByKindOnly(t *testing.T) {
	a := KeyRequired("k1")
	b := KeyRequired("k2")
	require.True(t, errors.Is(a, b))
	require.True(t, errors.Is(a, New(KindKeyRequired)))
	require.False(t, errors.Is(a, New(KindJwtExpired)))
}

func TestWrapPreservesExistingError(t *testing.T) {
	original := New(KindJwtExpired)
	wrapped := Wrap(original)
	require.Same(t, original, wrapped)
}

func TestWrapNilIsNil(t *testing.T) {
	require.Nil(t, Wrap(nil))
}

func TestWrapTagsPlainErrorAsSdk(t *testing.T) {
	plain := errors.New("boom")
	wrapped := Wrap(plain)
	require.Equal(t, KindSdk, wrapped.Kind)
	require.ErrorIs(t, wrapped.Unwrap(), plain)
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(KindSdk, "bad thing %d", 42)
	require.Contains(t, err.Error(), "bad thing 42")
}

func TestWithKeyIdAttachesId(t *testing.T) {
	err := New(KindKeyNotFound).WithKeyId("k9")
	require.Equal(t, "k9", err.KeyId)
}

func TestRotationRetriesExhaustedAggregatesCauses(t *testing.T) {
	causes := []error{errors.New("group a stuck"), errors.New("group b stuck")}
	err := NewRotationRetriesExhausted(10, []string{"a", "b"}, causes)
	require.Equal(t, 10, err.Passes)
	require.ErrorContains(t, err, "did not converge after 10 passes")
	require.ErrorContains(t, err, "2 rotations still pending")
}
