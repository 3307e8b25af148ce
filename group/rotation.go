package group

import (
	"context"

	"github.com/sentclose/sentc-go/accesspath"
	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/sdkerr"
	"github.com/sentclose/sentc-go/transport"
	"github.com/sentclose/sentc-go/user"
)

// DefaultRotationRetries bounds the participant retry loop: rotations
// whose previous_group_key_id is not yet in the local keyring are
// deferred to the next pass, up to this many passes, before giving up
// with ErrRotationRetriesExhausted. Config.RotationRetries overrides it.
const DefaultRotationRetries = 10

func rawOf(v any) ([]byte, error) {
	re, ok := v.(cryptomat.RawExporter)
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "group: %T does not support raw export", v)
	}
	return re.Raw(), nil
}

// resolveOwnPublicKey names the identity (the user directly, or the
// resolving ancestor group) whose newest public key a rotation seals
// the new group key to, mirroring the same AccessPath() the fetch
// engine resolves decryption against.
func resolveOwnPublicKey(g *Group, usr *user.User, ancestor *Group) (keyId string, pub cryptomat.AsymPublicKey, err error) {
	switch g.AccessPath().Tag {
	case accesspath.Direct:
		kv, ok := usr.GetNewestKey()
		if !ok {
			return "", nil, sdkerr.New(sdkerr.KindGroupFetchUserKeyNotFound)
		}
		return string(kv.Id), kv.Asym.Public, nil
	default:
		if ancestor == nil {
			return "", nil, sdkerr.New(sdkerr.KindParentGroupKeyNotFoundButRequired)
		}
		kv, ok := ancestor.GetNewestKey()
		if !ok {
			return "", nil, sdkerr.GroupFetchGroupKeyNotFound(string(ancestor.GroupId))
		}
		return string(kv.Id), kv.Asym.Public, nil
	}
}

// PrepareKeyRotation is the rotation initiator's path: generate a fresh
// group key and keypair, seal the new group key to the caller's own
// current public key (so it can be fetched straight back through the
// normal single-key fetch path), seal the new private keypair under
// the new group key itself, and lay the ephemeral-key cascade every
// other existing member will use to reach the new group key without a
// per-member asymmetric ciphertext from the initiator. sign is
// optional: when non-nil, EncryptedNewGroupKeyByEphKey — the one
// ciphertext every member sees verbatim — carries a detached signature
// members can opt into verifying.
func PrepareKeyRotation(ctx context.Context, api transport.GroupApi, g *Group, usr *user.User, ancestor *Group,
	symAlg, asymAlg cryptomat.Algorithm, sign cryptomat.SignKey) (*Group, error) {

	old, ok := g.GetNewestKey()
	if !ok {
		return nil, sdkerr.KeyRequired(string(g.GroupId))
	}
	ownKeyId, ownPub, err := resolveOwnPublicKey(g, usr, ancestor)
	if err != nil {
		return nil, err
	}

	newGroupKey, err := cryptomat.GenerateSymKey(symAlg, "")
	if err != nil {
		return nil, err
	}
	newPriv, newPub, err := cryptomat.GenerateAsymKeyPair(asymAlg, "")
	if err != nil {
		return nil, err
	}

	rawNewGroupKey, err := rawOf(newGroupKey)
	if err != nil {
		return nil, err
	}
	rawNewPriv, err := rawOf(newPriv)
	if err != nil {
		return nil, err
	}
	rawNewPub, err := rawOf(newPub)
	if err != nil {
		return nil, err
	}

	encGroupKeyByOwnKey, err := ownPub.Encrypt(rawNewGroupKey)
	if err != nil {
		return nil, err
	}
	_, encPrivateByNewKey, err := newGroupKey.EncryptRaw(rawNewPriv)
	if err != nil {
		return nil, err
	}

	ephKey, err := cryptomat.GenerateSymKey(symAlg, "")
	if err != nil {
		return nil, err
	}
	rawEphKey, err := rawOf(ephKey)
	if err != nil {
		return nil, err
	}
	_, encEphByPreviousKey, err := old.Sym.Key.EncryptRaw(rawEphKey)
	if err != nil {
		return nil, err
	}
	_, encNewGroupKeyByEphKey, err := ephKey.EncryptRaw(rawNewGroupKey)
	if err != nil {
		return nil, err
	}

	in := transport.PrepareKeyRotationInput{
		EncryptedGroupKeyByOwnKey:        encGroupKeyByOwnKey,
		EncryptedPrivateGroupKeyByNewKey: encPrivateByNewKey,
		PublicGroupKey:                   rawNewPub,
		GroupKeyAlg:                      string(symAlg),
		KeyPairAlg:                       string(asymAlg),
		EncryptedEphKeyByPreviousKey:     encEphByPreviousKey,
		EncryptedNewGroupKeyByEphKey:     encNewGroupKeyByEphKey,
	}
	if sign != nil {
		sig, err := sign.Sign(encNewGroupKeyByEphKey)
		if err != nil {
			return nil, err
		}
		in.Signature = sig
		in.SignedByUserSignKeyId = sign.KeyId()
	}

	newGroupKeyId, err := api.PrepareKeyRotation(ctx, string(g.GroupId), usr.Jwt(), in)
	if err != nil {
		return nil, err
	}

	k, _, err := PrepareFetchGroupKey(ctx, api, g, newGroupKeyId, usr.Jwt(), usr, ancestor)
	if err != nil {
		return nil, err
	}
	if k.UserPublicKeyId == "" {
		k.UserPublicKeyId = ownKeyId
	}
	if err := DoneFetchGroupKeyAfterRotation(g, k, usr, ancestor); err != nil {
		return nil, err
	}
	return g, nil
}

// RotationResultKind classifies what PrepareFinishKeyRotation found:
// nothing pending, every prerequisite key already loaded, or one or
// more prerequisites the caller must fetch before DoneKeyRotation can
// run.
type RotationResultKind int

const (
	RotationEmpty RotationResultKind = iota
	RotationOk
	RotationMissingKeys
)

// RotationResult is the staging verdict for the participant path. The
// pending rotations are always returned so a caller can process the
// already-satisfiable ones while fetching prerequisites for the rest:
// MissingGroupKeys lists previous_group_key_ids absent from this
// group's own keyring, MissingGroupPrivateKeys lists ancestor-group key
// versions the ephemeral key was wrapped to but the ancestor's keyring
// lacks, and MissingUserPrivateKeys the same for a direct access path
// against the user's keyring.
type RotationResult struct {
	Kind      RotationResultKind
	Rotations []transport.KeyRotationInput

	MissingGroupKeys        []string
	MissingGroupPrivateKeys []string
	MissingUserPrivateKeys  []string
}

// PrepareFinishKeyRotation polls for pending rotations and reports,
// without mutating anything, which prerequisite keys each one still
// needs. Callers fetch the missing ids (DoneFetchGroupKey on this
// group for MissingGroupKeys, on the ancestor for
// MissingGroupPrivateKeys; a user key fetch for
// MissingUserPrivateKeys) and call again, or hand the satisfiable
// rotations straight to DoneKeyRotation.
func PrepareFinishKeyRotation(ctx context.Context, api transport.GroupApi, g *Group, usr *user.User, ancestor *Group) (RotationResult, error) {
	rotations, err := api.PollPendingRotations(ctx, string(g.GroupId), usr.Jwt())
	if err != nil {
		return RotationResult{}, err
	}
	if len(rotations) == 0 {
		return RotationResult{Kind: RotationEmpty}, nil
	}

	res := RotationResult{Kind: RotationOk, Rotations: rotations}
	direct := g.AccessPath().Tag == accesspath.Direct

	seen := map[string]bool{}
	for _, r := range rotations {
		if _, ok := g.GetGroupKey(r.PreviousGroupKeyId); !ok && !seen["g:"+r.PreviousGroupKeyId] {
			seen["g:"+r.PreviousGroupKeyId] = true
			res.MissingGroupKeys = append(res.MissingGroupKeys, r.PreviousGroupKeyId)
		}
		if seen["p:"+r.EncryptedEphKeyKeyId] {
			continue
		}
		if direct {
			if usr == nil || !usr.HasKey(r.EncryptedEphKeyKeyId) {
				seen["p:"+r.EncryptedEphKeyKeyId] = true
				res.MissingUserPrivateKeys = append(res.MissingUserPrivateKeys, r.EncryptedEphKeyKeyId)
			}
			continue
		}
		if ancestor == nil {
			seen["p:"+r.EncryptedEphKeyKeyId] = true
			res.MissingGroupPrivateKeys = append(res.MissingGroupPrivateKeys, r.EncryptedEphKeyKeyId)
			continue
		}
		if _, ok := ancestor.GetGroupKey(r.EncryptedEphKeyKeyId); !ok {
			seen["p:"+r.EncryptedEphKeyKeyId] = true
			res.MissingGroupPrivateKeys = append(res.MissingGroupPrivateKeys, r.EncryptedEphKeyKeyId)
		}
	}

	if len(res.MissingGroupKeys) > 0 || len(res.MissingGroupPrivateKeys) > 0 || len(res.MissingUserPrivateKeys) > 0 {
		res.Kind = RotationMissingKeys
	}
	return res, nil
}

// DoneKeyRotation finishes one rotation: unwrap the ephemeral key
// through the private key the access path resolver names (outer layer)
// and the previous group key (inner layer), recover the new group key,
// re-seal it under the caller's own current public key, submit, and
// fetch the finished key version back into the keyring as the newest.
// verify is optional; when non-nil and the rotation carries a
// signature, the signature over EncryptedNewGroupKeyByEphKey is checked
// before anything is submitted. A signed rotation with verify == nil is
// processed without verification.
func DoneKeyRotation(ctx context.Context, api transport.GroupApi, g *Group, usr *user.User, ancestor *Group,
	r transport.KeyRotationInput, verify cryptomat.VerifyKey) error {

	prevKv, ok := g.GetGroupKey(r.PreviousGroupKeyId)
	if !ok {
		return sdkerr.GroupFetchGroupKeyNotFound(r.PreviousGroupKeyId)
	}
	privKv, err := g.ResolvePrivateKey(r.EncryptedEphKeyKeyId, usr, ancestor)
	if err != nil {
		return err
	}

	sealedEph, err := privKv.Asym.Private.Decrypt(r.EncryptedEphKeyByGroupKeyAndPublicKey)
	if err != nil {
		return sdkerr.Wrap(err)
	}
	rawEphKey, err := prevKv.Sym.Key.DecryptRaw(cryptomat.EncryptedHead{Id: r.PreviousGroupKeyId}, sealedEph, nil)
	if err != nil {
		return sdkerr.Wrap(err)
	}

	if verify != nil && len(r.Signature) > 0 {
		ok, verr := verify.Verify(r.EncryptedNewGroupKeyByEphKey, r.Signature)
		if verr != nil {
			return sdkerr.Wrap(verr)
		}
		if !ok {
			return sdkerr.Newf(sdkerr.KindSdk, "group: rotation signature verification failed for key %s", r.NewGroupKeyId)
		}
	}

	// the eph key shares the new group key's algorithm; its id is
	// immaterial since the head is reconstructed fresh rather than
	// persisted.
	ephK, err := cryptomat.NewSymKey(cryptomat.Algorithm(r.NewGroupKeyAlg), "eph", rawEphKey)
	if err != nil {
		return err
	}
	rawNewGroupKey, err := ephK.DecryptRaw(cryptomat.EncryptedHead{}, r.EncryptedNewGroupKeyByEphKey, nil)
	if err != nil {
		return sdkerr.Wrap(err)
	}

	_, ownPub, err := resolveOwnPublicKey(g, usr, ancestor)
	if err != nil {
		return err
	}
	encByOwn, err := ownPub.Encrypt(rawNewGroupKey)
	if err != nil {
		return err
	}
	if err := api.FinishKeyRotation(ctx, string(g.GroupId), usr.Jwt(), r.NewGroupKeyId, encByOwn); err != nil {
		return err
	}

	// already in the keyring when an out-of-order sweep fetched it
	// inline as another rotation's previous key; the server still
	// needed the re-sealed copy above, but there is nothing to append.
	if _, ok := g.GetGroupKey(r.NewGroupKeyId); ok {
		return nil
	}

	k, _, err := PrepareFetchGroupKey(ctx, api, g, r.NewGroupKeyId, usr.Jwt(), usr, ancestor)
	if err != nil {
		return err
	}
	return DoneFetchGroupKeyAfterRotation(g, k, usr, ancestor)
}

// VerifyKeyResolver turns a rotation's signed_by ids into a usable
// verify key; FinishKeyRotation calls it once per signed rotation. A
// nil resolver skips verification entirely.
type VerifyKeyResolver func(ctx context.Context, signedByUserId, signKeyId string) (cryptomat.VerifyKey, error)

// FinishKeyRotation drives the participant path to convergence:
// PrepareFinishKeyRotation, then DoneKeyRotation per rotation, with up
// to maxPasses sweeps (DefaultRotationRetries if zero). A rotation
// whose previous_group_key_id is still missing gets one inline fetch
// attempt per pass; if the fetch cannot complete yet (the key's own
// unwrap key is itself not loaded), the rotation is deferred to the
// next pass. Returns ErrRotationRetriesExhausted when the cap is hit
// with rotations still pending.
func FinishKeyRotation(ctx context.Context, api transport.GroupApi, g *Group, usr *user.User, ancestor *Group,
	resolve VerifyKeyResolver, maxPasses int) error {

	if maxPasses <= 0 {
		maxPasses = DefaultRotationRetries
	}

	res, err := PrepareFinishKeyRotation(ctx, api, g, usr, ancestor)
	if err != nil {
		return err
	}
	if res.Kind == RotationEmpty {
		return nil
	}

	pending := res.Rotations
	var causes []error
	var pendingIds []string

	for pass := 0; pass < maxPasses; pass++ {
		var deferred []transport.KeyRotationInput
		causes = causes[:0]
		pendingIds = pendingIds[:0]

		for _, r := range pending {
			if _, ok := g.GetGroupKey(r.PreviousGroupKeyId); !ok {
				if err := fetchMissingGroupKey(ctx, api, g, usr, ancestor, r.PreviousGroupKeyId); err != nil {
					deferred = append(deferred, r)
					pendingIds = append(pendingIds, r.NewGroupKeyId)
					causes = append(causes, err)
					continue
				}
			}

			var verify cryptomat.VerifyKey
			if resolve != nil && r.SignedByUserSignKeyId != nil {
				verify, err = resolve(ctx, derefStr(r.SignedByUserId), *r.SignedByUserSignKeyId)
				if err != nil {
					return err
				}
			}

			if err := DoneKeyRotation(ctx, api, g, usr, ancestor, r, verify); err != nil {
				return err
			}
		}

		if len(deferred) == 0 {
			return nil
		}
		pending = deferred
	}

	return sdkerr.NewRotationRetriesExhausted(maxPasses, pendingIds, causes)
}

// fetchMissingGroupKey pulls one absent key version into g's keyring so
// a rotation blocked on it can proceed within the same sweep.
func fetchMissingGroupKey(ctx context.Context, api transport.GroupApi, g *Group, usr *user.User, ancestor *Group, keyId string) error {
	k, res, err := PrepareFetchGroupKey(ctx, api, g, keyId, usr.Jwt(), usr, ancestor)
	if err != nil {
		return err
	}
	if res.Kind != FetchOk {
		return sdkerr.GroupFetchGroupKeyNotFound(keyId)
	}
	return DoneFetchGroupKey(g, k, usr, ancestor)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
