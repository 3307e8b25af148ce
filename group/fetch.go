package group

import (
	"context"
	"strconv"

	"github.com/sentclose/sentc-go/accesspath"
	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/keys"
	"github.com/sentclose/sentc-go/sdkerr"
	"github.com/sentclose/sentc-go/transport"
	"github.com/sentclose/sentc-go/user"
)

// groupKeyPage is the pagination threshold the server uses: a page of
// fewer than this many keys marks the end of the fetch.
const groupKeyPage = 50

// FetchResultKind distinguishes the three outcomes of
// PrepareFetchGroup: either every referenced key is already loaded, or
// one of two distinct sets of prerequisites is missing, each steering
// the caller toward a different fetch (ancestor group keys vs. user
// keys).
type FetchResultKind int

const (
	FetchOk FetchResultKind = iota
	FetchMissingGroupKeys
	FetchMissingUserKeys
)

// FetchResult is the staging verdict PrepareFetchGroup returns
// alongside the raw GroupOutData: callers inspect it to decide whether
// DoneFetchGroup can proceed immediately or whether missing
// prerequisites must be fetched and supplied first.
type FetchResult struct {
	Kind       FetchResultKind
	MissingIds []string
}

// PrepareFetchGroup issues the group GET, follows pagination until a
// page returns fewer than groupKeyPage keys, and computes which
// ancestor keys (if any) are still missing before DoneFetchGroup could
// decrypt everything. treatAsParent, when set, resolves this fetch's
// own access path as Direct regardless of the fetched record's
// from_parent/access_by_group_as_member flags — used when this group is
// itself being loaded only as a prerequisite ancestor for some other
// group, where the ancestor's own keys are always unlocked directly by
// the caller's user keyring.
func PrepareFetchGroup(ctx context.Context, api transport.GroupApi, groupId ids.GroupId, jwt string,
	usr *user.User, parentGroup *Group, treatAsParent bool) (transport.GroupOutData, FetchResult, error) {

	data, err := api.FetchGroup(ctx, string(groupId), jwt)
	if err != nil {
		return data, FetchResult{}, err
	}
	if len(data.Keys) == 0 {
		return data, FetchResult{}, sdkerr.New(sdkerr.KindNoGroupKeysFound)
	}

	for len(data.Keys) > 0 && len(data.Keys)%groupKeyPage == 0 {
		last := data.Keys[len(data.Keys)-1]
		page, err := api.FetchGroupKeyPage(ctx, string(groupId), jwt, strconv.FormatUint(last.Time, 10), last.GroupKeyId)
		if err != nil {
			return data, FetchResult{}, err
		}
		if len(page) == 0 {
			break
		}
		data.Keys = append(data.Keys, page...)
		if len(page) < groupKeyPage {
			break
		}
	}

	res := resolveFetchResult(data, treatAsParent, usr, parentGroup)
	return data, res, nil
}

func resolveFetchResult(data transport.GroupOutData, treatAsParent bool, usr *user.User, ancestor *Group) FetchResult {
	var ap accesspath.Resolution
	if treatAsParent {
		ap = accesspath.Resolution{Tag: accesspath.Direct}
	} else {
		ap = accesspath.Resolve(data.ParentGroupId != nil, data.AccessByParentGroup, data.AccessByGroupAsMember)
	}

	seen := map[string]bool{}
	var missing []string
	for _, k := range data.Keys {
		switch ap.Tag {
		case accesspath.Direct:
			if usr == nil || !usr.Keys.Has(ids.KeyId(k.UserPublicKeyId)) {
				if !seen[k.UserPublicKeyId] {
					seen[k.UserPublicKeyId] = true
					missing = append(missing, k.UserPublicKeyId)
				}
			}
		default:
			if ancestor == nil || !ancestor.Keys.Has(ids.KeyId(k.UserPublicKeyId)) {
				if !seen[k.UserPublicKeyId] {
					seen[k.UserPublicKeyId] = true
					missing = append(missing, k.UserPublicKeyId)
				}
			}
		}
	}

	if len(missing) == 0 {
		return FetchResult{Kind: FetchOk}
	}
	if ap.Tag == accesspath.Direct {
		return FetchResult{Kind: FetchMissingUserKeys, MissingIds: missing}
	}
	return FetchResult{Kind: FetchMissingGroupKeys, MissingIds: missing}
}

// DoneFetchGroup constructs the Group, seeds newest_key_id from
// keys[0], decrypts every GroupKeyServerOutput via the Access Path
// Resolver, then decrypts the group's own hmac/sortable keys using the
// just-decrypted symmetric keys they reference.
func DoneFetchGroup(data transport.GroupOutData, usr *user.User, parentGroup *Group, baseUrl, appToken string,
	accessByGroupAsMember *ids.GroupId, treatAsParent bool) (*Group, error) {

	var parentId *ids.GroupId
	if data.ParentGroupId != nil {
		p := ids.GroupId(*data.ParentGroupId)
		parentId = &p
	}
	var accessByParent *ids.GroupId
	if data.AccessByParentGroup != nil {
		p := ids.GroupId(*data.AccessByParentGroup)
		accessByParent = &p
	}
	accessByMember := accessByGroupAsMember
	if data.AccessByGroupAsMember != nil {
		p := ids.GroupId(*data.AccessByGroupAsMember)
		accessByMember = &p
	}

	g := New(ids.GroupId(data.GroupId), parentId, data.ParentGroupId != nil && !treatAsParent, data.KeyUpdate,
		data.CreatedTime, data.JoinedTime, data.Rank, data.IsConnectedGroup,
		accessByParent, accessByMember, baseUrl, appToken)

	if treatAsParent {
		// an ancestor fetched only to unlock a descendant is always
		// resolved directly against the caller's own user keyring.
		g.FromParent = false
		g.AccessByGroupAsMember = nil
	}

	for _, k := range data.Keys {
		priv, err := g.ResolvePrivateKey(k.UserPublicKeyId, usr, parentGroup)
		if err != nil {
			return nil, err
		}

		rawGroupKey, err := priv.Asym.Private.Decrypt(k.EncryptedGroupKey)
		if err != nil {
			return nil, sdkerr.Wrap(err)
		}
		symAlg := cryptomat.Algorithm(k.GroupKeyAlg)
		symKey, err := cryptomat.NewSymKey(symAlg, k.GroupKeyId, rawGroupKey)
		if err != nil {
			return nil, err
		}

		rawPrivateGroupKey, err := symKey.DecryptRaw(cryptomat.EncryptedHead{Id: k.GroupKeyId}, k.EncryptedPrivateGroupKey, nil)
		if err != nil {
			return nil, sdkerr.Wrap(err)
		}
		asymAlg := cryptomat.Algorithm(k.KeyPairAlg)
		asymPriv, err := cryptomat.NewAsymPrivateKey(asymAlg, k.KeyPairId, rawPrivateGroupKey)
		if err != nil {
			return nil, err
		}
		asymPub, err := cryptomat.NewAsymPublicKey(asymAlg, k.KeyPairId, k.PublicGroupKey)
		if err != nil {
			return nil, err
		}

		kv := KeyVersion{
			Id:   ids.KeyId(k.GroupKeyId),
			Sym:  keys.Symmetric{Id: ids.KeyId(k.GroupKeyId), Alg: symAlg, Key: symKey, Time: k.Time},
			Asym: keys.AsymKeyPair{Id: ids.KeyId(k.KeyPairId), Alg: asymAlg, Private: asymPriv, Public: asymPub, ExportedPublic: k.PublicGroupKey},
			Time: k.Time,
		}
		if err := g.Keys.Append(kv); err != nil {
			return nil, err
		}
	}
	if err := g.Keys.SetNewestId(ids.KeyId(data.Keys[0].GroupKeyId)); err != nil {
		return nil, err
	}

	if err := decryptGroupHmacKeys(g, data.HmacKeys); err != nil {
		return nil, err
	}
	if err := decryptGroupSortableKeys(g, data.SortableKeys); err != nil {
		return nil, err
	}

	return g, nil
}

func decryptGroupHmacKeys(g *Group, hmacs []transport.GroupHmacData) error {
	for _, h := range hmacs {
		kv, ok := g.GetGroupKey(h.EncryptedHmacEncryptionKeyId)
		if !ok {
			return sdkerr.KeyRequired(h.EncryptedHmacEncryptionKeyId)
		}
		raw, err := kv.Sym.Key.DecryptRaw(cryptomat.EncryptedHead{Id: h.Id}, h.EncryptedHmacKey, nil)
		if err != nil {
			return sdkerr.Wrap(err)
		}
		key, err := cryptomat.NewHmacKeyFromRaw(cryptomat.Algorithm(h.Alg), raw)
		if err != nil {
			return err
		}
		g.HmacKeys = append(g.HmacKeys, keys.Hmac{Id: ids.KeyId(h.Id), Alg: cryptomat.Algorithm(h.Alg), Key: key})
	}
	return nil
}

func decryptGroupSortableKeys(g *Group, sortables []transport.GroupSortableData) error {
	for _, s := range sortables {
		kv, ok := g.GetGroupKey(s.EncryptedSortableEncryptionKeyId)
		if !ok {
			return sdkerr.KeyRequired(s.EncryptedSortableEncryptionKeyId)
		}
		raw, err := kv.Sym.Key.DecryptRaw(cryptomat.EncryptedHead{Id: s.Id}, s.EncryptedSortableKey, nil)
		if err != nil {
			return sdkerr.Wrap(err)
		}
		key, err := cryptomat.NewSortableKeyFromRaw(cryptomat.Algorithm(s.Alg), raw)
		if err != nil {
			return err
		}
		g.SortableKeys = append(g.SortableKeys, keys.Sortable{Id: ids.KeyId(s.Id), Alg: cryptomat.Algorithm(s.Alg), Key: key})
	}
	return nil
}

// PrepareFetchGroupKey stages fetching a single additional key into an
// already-loaded group, e.g. one named by an inbound ciphertext's
// EncryptedHead.Id that is not yet in the keyring. The missing-key
// verdict is computed against g's own access path: if the referenced
// user_public_key_id is itself absent, the result names exactly that
// one id.
func PrepareFetchGroupKey(ctx context.Context, api transport.GroupApi, g *Group, keyId, jwt string,
	usr *user.User, ancestor *Group) (transport.GroupKeyServerOutput, FetchResult, error) {

	k, err := api.FetchGroupKey(ctx, string(g.GroupId), keyId, jwt)
	if err != nil {
		return k, FetchResult{}, err
	}

	switch g.AccessPath().Tag {
	case accesspath.Direct:
		if usr == nil || !usr.Keys.Has(ids.KeyId(k.UserPublicKeyId)) {
			return k, FetchResult{Kind: FetchMissingUserKeys, MissingIds: []string{k.UserPublicKeyId}}, nil
		}
	default:
		if ancestor == nil || !ancestor.Keys.Has(ids.KeyId(k.UserPublicKeyId)) {
			return k, FetchResult{Kind: FetchMissingGroupKeys, MissingIds: []string{k.UserPublicKeyId}}, nil
		}
	}
	return k, FetchResult{Kind: FetchOk}, nil
}

// DoneFetchGroupKey decrypts and appends the single key staged by
// PrepareFetchGroupKey into an already-loaded Group.
func DoneFetchGroupKey(g *Group, k transport.GroupKeyServerOutput, usr *user.User, parentGroup *Group) error {
	priv, err := g.ResolvePrivateKey(k.UserPublicKeyId, usr, parentGroup)
	if err != nil {
		return err
	}
	rawGroupKey, err := priv.Asym.Private.Decrypt(k.EncryptedGroupKey)
	if err != nil {
		return sdkerr.Wrap(err)
	}
	symAlg := cryptomat.Algorithm(k.GroupKeyAlg)
	symKey, err := cryptomat.NewSymKey(symAlg, k.GroupKeyId, rawGroupKey)
	if err != nil {
		return err
	}
	rawPrivateGroupKey, err := symKey.DecryptRaw(cryptomat.EncryptedHead{Id: k.GroupKeyId}, k.EncryptedPrivateGroupKey, nil)
	if err != nil {
		return sdkerr.Wrap(err)
	}
	asymAlg := cryptomat.Algorithm(k.KeyPairAlg)
	asymPriv, err := cryptomat.NewAsymPrivateKey(asymAlg, k.KeyPairId, rawPrivateGroupKey)
	if err != nil {
		return err
	}
	asymPub, err := cryptomat.NewAsymPublicKey(asymAlg, k.KeyPairId, k.PublicGroupKey)
	if err != nil {
		return err
	}
	kv := KeyVersion{
		Id:   ids.KeyId(k.GroupKeyId),
		Sym:  keys.Symmetric{Id: ids.KeyId(k.GroupKeyId), Alg: symAlg, Key: symKey, Time: k.Time},
		Asym: keys.AsymKeyPair{Id: ids.KeyId(k.KeyPairId), Alg: asymAlg, Private: asymPriv, Public: asymPub, ExportedPublic: k.PublicGroupKey},
		Time: k.Time,
	}
	return g.Keys.Append(kv)
}

// DoneFetchGroupKeyAfterRotation additionally moves the newest pointer,
// used by the rotation initiator (PrepareKeyRotation) and by a
// participant's DoneKeyRotation.
func DoneFetchGroupKeyAfterRotation(g *Group, k transport.GroupKeyServerOutput, usr *user.User, parentGroup *Group) error {
	if err := DoneFetchGroupKey(g, k, usr, parentGroup); err != nil {
		return err
	}
	return g.Keys.SetNewestId(ids.KeyId(k.GroupKeyId))
}
