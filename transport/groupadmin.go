package transport

import (
	"context"
	"net/http"
)

// GroupAdminApi covers the membership-management calls that sit beside
// GroupApi's fetch/rotation surface: creating a group, inviting and
// kicking members, and re-inviting a previously kicked member. Kept as
// a separate interface so a caller that only needs fetch/decrypt (e.g.
// a read replica) can depend on the narrower GroupApi alone.
type GroupAdminApi interface {
	CreateGroup(ctx context.Context, jwt string, in CreateGroupInput) (groupId string, err error)
	InviteUser(ctx context.Context, groupId, jwt, userId string, in InviteUserInput) error
	KickUser(ctx context.Context, groupId, jwt, userId string) error
	ReInviteUser(ctx context.Context, groupId, jwt, userId string, in InviteUserInput) error
}

// CreateGroupInput is the newly generated group key material, sealed
// under the creator's own newest public key (direct access) exactly
// like a rotation's EncryptedGroupKeyByOwnKey, plus an optional parent
// group id (child group creation) or connected-group marker.
type CreateGroupInput struct {
	EncryptedGroupKey        []byte `json:"encrypted_group_key"`
	GroupKeyAlg              string `json:"group_key_alg"`
	EncryptedPrivateGroupKey []byte `json:"encrypted_private_group_key"`
	PublicGroupKey           []byte `json:"public_group_key"`
	KeyPairAlg               string `json:"keypair_alg"`
	ParentGroupId            string `json:"parent_group_id,omitempty"`
	IsConnectedGroup         bool   `json:"is_connected_group"`
}

// InviteUserInput seals the group's current master key to the invitee's
// newest public key, the same shape every historical key version an
// invite carries along uses (one entry per version the inviter holds).
type InviteUserInput struct {
	Keys []InviteUserKey `json:"keys"`
	Rank int32           `json:"rank"`
}

type InviteUserKey struct {
	GroupKeyId        string `json:"group_key_id"`
	EncryptedGroupKey []byte `json:"encrypted_group_key"`
	Alg               string `json:"alg"`
}

func (c *HttpGroupApi) CreateGroup(ctx context.Context, jwt string, in CreateGroupInput) (string, error) {
	var out struct {
		GroupId string `json:"group_id"`
	}
	err := c.do(ctx, http.MethodPost, "/group", jwt, in, &out)
	return out.GroupId, err
}

func (c *HttpGroupApi) InviteUser(ctx context.Context, groupId, jwt, userId string, in InviteUserInput) error {
	return c.do(ctx, http.MethodPost, "/group/"+groupId+"/invite/"+userId, jwt, in, nil)
}

func (c *HttpGroupApi) KickUser(ctx context.Context, groupId, jwt, userId string) error {
	return c.do(ctx, http.MethodDelete, "/group/"+groupId+"/member/"+userId, jwt, nil, nil)
}

func (c *HttpGroupApi) ReInviteUser(ctx context.Context, groupId, jwt, userId string, in InviteUserInput) error {
	return c.do(ctx, http.MethodPost, "/group/"+groupId+"/invite/"+userId+"/re", jwt, in, nil)
}
