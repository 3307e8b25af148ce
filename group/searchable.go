package group

import (
	"encoding/hex"

	"github.com/sentclose/sentc-go/sdkerr"
)

// SearchableIndex is the set of deterministic blind-index tokens
// produced for a piece of plaintext under the group's searchable-index
// key. Full equality search produces a single token over the whole
// input; prefix search produces one token per growing byte prefix, so
// the server can answer "starts with" lookups without learning the
// plaintext. Tokens are keyed HMAC outputs: identical for every member
// holding the same index key, unlinkable across keys.
type SearchableIndex struct {
	Alg    string
	Tokens []string
}

// CreateSearch builds the index entries to store alongside data. With
// full set the result is exactly one token over the entire input;
// otherwise one token per byte prefix (a query for any leading
// substring then hashes to a stored token). limit, when non-nil, caps
// how many prefix tokens are emitted.
func (g *Group) CreateSearch(data []byte, full bool, limit *int) (SearchableIndex, error) {
	if len(g.HmacKeys) == 0 {
		return SearchableIndex{}, sdkerr.KeyRequired("")
	}
	if len(data) == 0 {
		return SearchableIndex{}, sdkerr.Newf(sdkerr.KindSdk, "group: empty searchable input")
	}
	hk := g.HmacKeys[0]

	if full {
		return SearchableIndex{
			Alg:    string(hk.Alg),
			Tokens: []string{hex.EncodeToString(hk.Key.Tag(data))},
		}, nil
	}

	max := len(data)
	if limit != nil && *limit > 0 && *limit < max {
		max = *limit
	}
	tokens := make([]string, 0, max)
	for n := 1; n <= max; n++ {
		tokens = append(tokens, hex.EncodeToString(hk.Key.Tag(data[:n])))
	}
	return SearchableIndex{Alg: string(hk.Alg), Tokens: tokens}, nil
}

// Search produces the single token a caller submits as a query term; it
// equals the full-equality token for the same bytes, and the prefix
// token CreateSearch emitted if data is a leading substring of an
// indexed value.
func (g *Group) Search(data []byte) (string, error) {
	if len(g.HmacKeys) == 0 {
		return "", sdkerr.KeyRequired("")
	}
	return hex.EncodeToString(g.HmacKeys[0].Key.Tag(data)), nil
}
