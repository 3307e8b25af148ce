package group

import (
	"encoding/json"

	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/keys"
	"github.com/sentclose/sentc-go/sdkerr"
)

// groupWire is the persisted form of a Group: every field of the
// entity, with the key containers flattened through their own wire
// encodings. Keystore seals this blob under a KEK; it is never written
// anywhere in plaintext by the SDK itself.
type groupWire struct {
	GroupId          ids.GroupId  `json:"group_id"`
	ParentGroupId    *ids.GroupId `json:"parent_group_id,omitempty"`
	FromParent       bool         `json:"from_parent"`
	KeyUpdate        bool         `json:"key_update"`
	CreatedTime      uint64       `json:"created_time"`
	JoinedTime       uint64       `json:"joined_time"`
	Rank             int32        `json:"rank"`
	IsConnectedGroup bool         `json:"is_connected_group"`

	AccessByParent        *ids.GroupId `json:"access_by_parent,omitempty"`
	AccessByGroupAsMember *ids.GroupId `json:"access_by_group_as_member,omitempty"`

	Keys        []KeyVersion `json:"keys"`
	NewestKeyId ids.KeyId    `json:"newest_key_id"`

	HmacKeys     []keys.Hmac     `json:"hmac_keys,omitempty"`
	SortableKeys []keys.Sortable `json:"sortable_keys,omitempty"`

	BaseUrl  string `json:"base_url"`
	AppToken string `json:"app_token"`
}

// ToString serializes g for persistence.
func (g *Group) ToString() (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	w := groupWire{
		GroupId:               g.GroupId,
		ParentGroupId:         g.ParentGroupId,
		FromParent:            g.FromParent,
		KeyUpdate:             g.KeyUpdate,
		CreatedTime:           g.CreatedTime,
		JoinedTime:            g.JoinedTime,
		Rank:                  g.Rank,
		IsConnectedGroup:      g.IsConnectedGroup,
		AccessByParent:        g.AccessByParent,
		AccessByGroupAsMember: g.AccessByGroupAsMember,
		Keys:                  g.Keys.All(),
		NewestKeyId:           g.Keys.NewestId(),
		HmacKeys:              g.HmacKeys,
		SortableKeys:          g.SortableKeys,
		BaseUrl:               g.BaseUrl,
		AppToken:              g.AppToken,
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", sdkerr.Newf(sdkerr.KindJsonToStringFailed, "%v", err)
	}
	return string(b), nil
}

// FromString reverses ToString, rebuilding the keyring index and newest
// pointer from the flattened key list.
func FromString(s string) (*Group, error) {
	var w groupWire
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}

	g := New(w.GroupId, w.ParentGroupId, w.FromParent, w.KeyUpdate,
		w.CreatedTime, w.JoinedTime, w.Rank, w.IsConnectedGroup,
		w.AccessByParent, w.AccessByGroupAsMember, w.BaseUrl, w.AppToken)
	g.HmacKeys = w.HmacKeys
	g.SortableKeys = w.SortableKeys

	for _, kv := range w.Keys {
		if err := g.Keys.Append(kv); err != nil {
			return nil, err
		}
	}
	if w.NewestKeyId != "" {
		if err := g.Keys.SetNewestId(w.NewestKeyId); err != nil {
			return nil, err
		}
	}
	return g, nil
}
