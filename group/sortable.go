package group

import (
	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/sdkerr"
)

// EncryptSortableNumber order-preserving-encodes n under the group's
// current sortable key so the server can range/sort query on the
// result without learning n itself. n above
// cryptomat.MaxSortableNumber is rejected: past that bound the
// encoding could no longer keep larger inputs above smaller ones.
func (g *Group) EncryptSortableNumber(n uint64) (uint64, error) {
	if len(g.SortableKeys) == 0 {
		return 0, sdkerr.KeyRequired("")
	}
	v, err := g.SortableKeys[0].Key.EncryptNumber(n)
	if err != nil {
		return 0, sdkerr.Wrap(err)
	}
	return v, nil
}

// EncryptSortableString order-preserving-encodes the first maxLen runes
// of s (4 when maxLen is 0). Only useful for prefix ordering: two
// strings that agree on their first maxLen runes encode identically.
// maxLen beyond cryptomat.MaxSortableStringLen is rejected rather than
// passed through, since no SortableKey implementation can keep every
// character distinguishable past that point.
func (g *Group) EncryptSortableString(s string, maxLen int) (uint64, error) {
	if len(g.SortableKeys) == 0 {
		return 0, sdkerr.KeyRequired("")
	}
	if maxLen <= 0 {
		maxLen = 4
	}
	if maxLen > cryptomat.MaxSortableStringLen {
		return 0, sdkerr.Newf(sdkerr.KindSdk, "group: max_len %d exceeds the maximum sortable string length of %d", maxLen, cryptomat.MaxSortableStringLen)
	}
	v, err := g.SortableKeys[0].Key.EncryptString(s, maxLen)
	if err != nil {
		return 0, sdkerr.Wrap(err)
	}
	return v, nil
}
