// Package group implements the Group entity and the four collaborators
// that operate on it: the Access Path Resolver, the Group Fetch/Decrypt
// Engine, the Key Rotation Engine, and the Crypto Operation Surface
// (split across group.go, fetch.go, rotation.go, crypto.go,
// searchable.go and sortable.go).
package group

import (
	"sync"

	"github.com/sentclose/sentc-go/accesspath"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/keyring"
	"github.com/sentclose/sentc-go/keys"
	"github.com/sentclose/sentc-go/sdkerr"
	"github.com/sentclose/sentc-go/user"
)

// KeyVersion is one version of a group's keys: a symmetric group key
// plus the asymmetric keypair used to receive re-encrypted copies of it
// from other members, sharing one KeyId. Immutable once appended.
type KeyVersion struct {
	Id   ids.KeyId        `json:"id"`
	Sym  keys.Symmetric   `json:"sym"`
	Asym keys.AsymKeyPair `json:"asym"`
	Time uint64           `json:"time"`
}

func (v KeyVersion) KeyIdOf() ids.KeyId { return v.Id }

// Group is one access path's view of a group's keys and membership
// metadata. The same group id accessed via two different paths (e.g.
// direct membership and via a connected group) is represented by two
// independent Group values — see cache.Cache for how the access-owner
// keying enforces that.
type Group struct {
	mu sync.RWMutex

	GroupId          ids.GroupId
	ParentGroupId    *ids.GroupId
	FromParent       bool
	KeyUpdate        bool
	CreatedTime      uint64
	JoinedTime       uint64
	Rank             int32
	IsConnectedGroup bool

	AccessByParent        *ids.GroupId
	AccessByGroupAsMember *ids.GroupId

	Keys         *keyring.Keyring[KeyVersion]
	HmacKeys     []keys.Hmac
	SortableKeys []keys.Sortable

	BaseUrl  string
	AppToken string
}

// New constructs a Group with no keys yet; done_fetch_group populates
// Keys and seeds the newest pointer before returning it to the caller,
// satisfying the invariant that a Group is never observed with zero
// keys outside of that one construction window.
func New(groupId ids.GroupId, parentGroupId *ids.GroupId, fromParent, keyUpdate bool,
	createdTime, joinedTime uint64, rank int32, isConnectedGroup bool,
	accessByParent, accessByGroupAsMember *ids.GroupId, baseUrl, appToken string) *Group {

	return &Group{
		GroupId:               groupId,
		ParentGroupId:         parentGroupId,
		FromParent:            fromParent,
		KeyUpdate:             keyUpdate,
		CreatedTime:           createdTime,
		JoinedTime:            joinedTime,
		Rank:                  rank,
		IsConnectedGroup:      isConnectedGroup,
		AccessByParent:        accessByParent,
		AccessByGroupAsMember: accessByGroupAsMember,
		Keys:                  keyring.New[KeyVersion](),
		BaseUrl:               baseUrl,
		AppToken:              appToken,
	}
}

// AccessPath resolves which ancestor's keyring decrypts this group's
// fetched keys, per the Access Path Resolver rule: a connected-group
// path takes precedence over a parent path when both are set.
func (g *Group) AccessPath() accesspath.Resolution {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var byParent, byMember *string
	if g.AccessByParent != nil {
		s := string(*g.AccessByParent)
		byParent = &s
	}
	if g.AccessByGroupAsMember != nil {
		s := string(*g.AccessByGroupAsMember)
		byMember = &s
	}
	return accesspath.Resolve(g.FromParent, byParent, byMember)
}

// GetNewestKey returns the group's most recent KeyVersion.
func (g *Group) GetNewestKey() (KeyVersion, bool) {
	return g.Keys.GetNewest()
}

// GetGroupKey looks up a specific group KeyVersion by id.
func (g *Group) GetGroupKey(id string) (KeyVersion, bool) {
	return g.Keys.GetById(ids.KeyId(id))
}

// ResolvePrivateKey applies the access-path decryption rule: given the
// user_public_key_id referenced by a fetched GroupKeyServerOutput, pick
// the ancestor whose private key must decrypt it. ancestor is the
// parent or connected group when
// AccessPath() is not Direct; it is nil for a direct access path. A
// missing ancestor or a missing key in the ancestor's keyring surfaces
// a distinguishable error rather than a generic one, so the caller
// knows to fetch the ancestor/that key and retry.
func (g *Group) ResolvePrivateKey(userPublicKeyId string, usr *user.User, ancestor *Group) (KeyVersion, error) {
	res := g.AccessPath()
	switch res.Tag {
	case accesspath.Direct:
		if usr == nil {
			return KeyVersion{}, sdkerr.New(sdkerr.KindGroupFetchUserKeyNotFound)
		}
		kv, ok := usr.GetKeyVersion(ids.KeyId(userPublicKeyId))
		if !ok {
			return KeyVersion{}, sdkerr.New(sdkerr.KindGroupFetchUserKeyNotFound)
		}
		return KeyVersion{Id: kv.Id, Sym: kv.Group, Asym: kv.Asym, Time: kv.Time}, nil
	default:
		if ancestor == nil {
			return KeyVersion{}, sdkerr.ParentGroupKeyNotFoundButRequired(userPublicKeyId)
		}
		kv, ok := ancestor.GetGroupKey(userPublicKeyId)
		if !ok {
			return KeyVersion{}, sdkerr.GroupFetchGroupKeyNotFound(userPublicKeyId)
		}
		return kv, nil
	}
}
