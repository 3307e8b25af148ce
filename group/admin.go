package group

import (
	"context"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/sdkerr"
	"github.com/sentclose/sentc-go/transport"
	"github.com/sentclose/sentc-go/user"
)

// CreateGroup generates a fresh group key and keypair, seals the key to
// the creator's own newest public key (or, for a child group, to the
// parent's newest public key), and registers the group with the
// server. It returns only the new group's id, with no keys loaded —
// callers fetch it back via PrepareFetchGroup/DoneFetchGroup, the same as
// any other membership change, rather than seeding the keyring here
// from material the server has not yet echoed back.
func CreateGroup(ctx context.Context, api transport.GroupAdminApi, usr *user.User, parent *Group,
	symAlg, asymAlg cryptomat.Algorithm) (ids.GroupId, error) {

	var ownPub cryptomat.AsymPublicKey
	if parent != nil {
		kv, ok := parent.GetNewestKey()
		if !ok {
			return "", sdkerr.KeyRequired(string(parent.GroupId))
		}
		ownPub = kv.Asym.Public
	} else {
		kv, ok := usr.GetNewestKey()
		if !ok {
			return "", sdkerr.New(sdkerr.KindGroupFetchUserKeyNotFound)
		}
		ownPub = kv.Asym.Public
	}

	groupKey, err := cryptomat.GenerateSymKey(symAlg, "")
	if err != nil {
		return "", err
	}
	priv, pub, err := cryptomat.GenerateAsymKeyPair(asymAlg, "")
	if err != nil {
		return "", err
	}
	rawGroupKey, err := rawOf(groupKey)
	if err != nil {
		return "", err
	}
	rawPriv, err := rawOf(priv)
	if err != nil {
		return "", err
	}
	rawPub, err := rawOf(pub)
	if err != nil {
		return "", err
	}

	encGroupKeyByOwnKey, err := ownPub.Encrypt(rawGroupKey)
	if err != nil {
		return "", err
	}
	_, encPrivByGroupKey, err := groupKey.EncryptRaw(rawPriv)
	if err != nil {
		return "", sdkerr.Wrap(err)
	}

	in := transport.CreateGroupInput{
		EncryptedGroupKey:        encGroupKeyByOwnKey,
		GroupKeyAlg:              string(symAlg),
		EncryptedPrivateGroupKey: encPrivByGroupKey,
		PublicGroupKey:           rawPub,
		KeyPairAlg:               string(asymAlg),
	}
	if parent != nil {
		in.ParentGroupId = string(parent.GroupId)
	}

	groupId, err := api.CreateGroup(ctx, usr.Jwt(), in)
	return ids.GroupId(groupId), err
}

// InviteUser seals the group's current master key version (and, if
// present, every earlier version the inviter still holds) to the
// invitee's newest public key, so the invitee can decrypt the whole
// accessible key history on first fetch rather than only the newest
// version.
func InviteUser(ctx context.Context, api transport.GroupAdminApi, g *Group, jwt string, invitee transport.UserPublicKeyData, rank int32) error {
	pub, err := cryptomat.NewAsymPublicKey(cryptomat.Algorithm(invitee.Alg), invitee.Id, invitee.PublicKey)
	if err != nil {
		return err
	}

	all := g.Keys.All()
	keysOut := make([]transport.InviteUserKey, 0, len(all))
	for _, kv := range all {
		raw, err := rawOf(kv.Sym.Key)
		if err != nil {
			return err
		}
		enc, err := pub.Encrypt(raw)
		if err != nil {
			return err
		}
		keysOut = append(keysOut, transport.InviteUserKey{
			GroupKeyId:        string(kv.Id),
			EncryptedGroupKey: enc,
			Alg:               string(kv.Sym.Alg),
		})
	}

	return api.InviteUser(ctx, string(g.GroupId), jwt, invitee.Id, transport.InviteUserInput{Keys: keysOut, Rank: rank})
}

// ReInviteUser repeats InviteUser's sealing against a user previously
// kicked from the group — the server distinguishes the two calls only
// to decide whether a fresh membership row is created or an existing
// (revoked) one is reactivated.
func ReInviteUser(ctx context.Context, api transport.GroupAdminApi, g *Group, jwt string, invitee transport.UserPublicKeyData, rank int32) error {
	pub, err := cryptomat.NewAsymPublicKey(cryptomat.Algorithm(invitee.Alg), invitee.Id, invitee.PublicKey)
	if err != nil {
		return err
	}

	all := g.Keys.All()
	keysOut := make([]transport.InviteUserKey, 0, len(all))
	for _, kv := range all {
		raw, err := rawOf(kv.Sym.Key)
		if err != nil {
			return err
		}
		enc, err := pub.Encrypt(raw)
		if err != nil {
			return err
		}
		keysOut = append(keysOut, transport.InviteUserKey{
			GroupKeyId:        string(kv.Id),
			EncryptedGroupKey: enc,
			Alg:               string(kv.Sym.Alg),
		})
	}

	return api.ReInviteUser(ctx, string(g.GroupId), jwt, invitee.Id, transport.InviteUserInput{Keys: keysOut, Rank: rank})
}

// KickUser removes a member; it carries no local key-material
// consequence (the expelled member's already-decrypted local keyring
// is a client-side cache invalidation concern, not this call's). A
// subsequent key rotation is the caller's responsibility to seal future
// group keys away from the removed member.
func KickUser(ctx context.Context, api transport.GroupAdminApi, g *Group, jwt, userId string) error {
	return api.KickUser(ctx, string(g.GroupId), jwt, userId)
}
