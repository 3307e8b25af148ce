// Package sentc is the top-level facade tying the identity, group,
// cache, rotation-watcher, keystore and file packages into the small
// set of calls an application actually makes: register, login, create
// a group, fetch it (transparently resolving missing ancestor/user
// keys), invite/kick members, rotate keys, and move files. It adds no
// crypto of its own — every operation here is a thin orchestration over
// the packages that do.
package sentc

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/sentclose/sentc-go/cache"
	"github.com/sentclose/sentc-go/config"
	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/file"
	"github.com/sentclose/sentc-go/group"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/sdkerr"
	"github.com/sentclose/sentc-go/transport"
	"github.com/sentclose/sentc-go/user"
)

// Client bundles a Config with the in-process Cache every convenience
// method shares; the synchronous group/user/file packages remain
// usable directly by callers who want no caching at all.
type Client struct {
	Cfg    *config.Config
	Cache  *cache.Cache
	logger hclog.Logger
}

// New builds a Client around cfg with a fresh, empty Cache.
func New(cfg *config.Config) *Client {
	return &Client{Cfg: cfg, Cache: cache.New(), logger: cfg.Logger.Named("sentc")}
}

// CheckUserNameAvailable reports whether userIdentifier is free to
// register.
func (c *Client) CheckUserNameAvailable(ctx context.Context, userIdentifier string) (bool, error) {
	return c.Cfg.UserApi().CheckUserNameAvailable(ctx, userIdentifier)
}

// Register submits a new account and returns its UserId. Callers log
// in separately afterward; registration deliberately does not also log
// in, so a provisioning service can create accounts it never holds
// session tokens for.
func (c *Client) Register(ctx context.Context, userIdentifier, password string, hasher cryptomat.PwHasher,
	symAlg, asymAlg, signAlg cryptomat.Algorithm) (ids.UserId, error) {

	return user.DoRegister(ctx, c.Cfg.UserApi(), user.RegisterInput{
		UserIdentifier: userIdentifier,
		Password:       password,
		Hasher:         hasher,
		SymAlg:         symAlg,
		AsymAlg:        asymAlg,
		SignAlg:        signAlg,
	})
}

// Login authenticates, decrypts the device keypair and every returned
// master key version, caches the resulting *user.User as the actual
// user, and returns it. A wrong password or a server-side rejection
// surfaces as an error rather than a partially built User.
func (c *Client) Login(ctx context.Context, userIdentifier, password string, hasher cryptomat.PwHasher, symAlg cryptomat.Algorithm) (*user.User, error) {
	usr, err := user.Login(ctx, c.Cfg.UserApi(), user.LoginInput{
		UserIdentifier: userIdentifier,
		Password:       password,
		Hasher:         hasher,
		SymAlg:         symAlg,
		BaseUrl:        c.Cfg.BaseURL,
		AppToken:       c.Cfg.AppToken,
	})
	if err != nil {
		c.logger.Debug("login failed", "user", userIdentifier, "error", err)
		return nil, err
	}
	c.Cache.InsertUser(usr.UserId(), usr)
	c.Cache.SetActualUser(usr.UserId())
	return usr, nil
}

// ChangePassword re-derives and re-seals the device keypair under a
// fresh password without requiring the caller to log in again.
func (c *Client) ChangePassword(ctx context.Context, usr *user.User, hasher cryptomat.PwHasher,
	symAlg cryptomat.Algorithm, oldPassword, newPassword string) error {

	return user.ChangePassword(ctx, c.Cfg.UserApi(), usr, hasher, symAlg, oldPassword, newPassword)
}

// CreateGroup registers a fresh top-level or child group and returns
// its id; the caller fetches it back via GetGroup to obtain a decrypted
// handle, the same two-step shape every other membership change uses.
func (c *Client) CreateGroup(ctx context.Context, usr *user.User, parent *group.Group, symAlg, asymAlg cryptomat.Algorithm) (ids.GroupId, error) {
	return group.CreateGroup(ctx, c.Cfg.GroupApi(), usr, parent, symAlg, asymAlg)
}

// groupOwner names the cache partition a fetched group is stored
// under: the connected group's id when reached as a group-as-member,
// otherwise the logged-in user's id.
func groupOwner(usr *user.User, accessByGroupAsMember *ids.GroupId) string {
	if accessByGroupAsMember != nil {
		return accessByGroupAsMember.String()
	}
	return usr.UserId().String()
}

// GetGroup returns a decrypted *group.Group, serving it from Cache when
// already loaded. On a cache miss it prepares the fetch, resolves any
// missing ancestor-group prerequisite by fetching that ancestor first
// (recursively, since an ancestor can itself have a missing ancestor),
// and caches the result under the resolved access owner. A fetch whose
// missing prerequisite is the caller's own user keys (rather than an
// ancestor group's) is not auto-resolved here — the caller's own
// keyring only grows via user key rotation, which the caller drives
// explicitly — and surfaces as KindGroupFetchUserKeyNotFound.
func (c *Client) GetGroup(ctx context.Context, groupId ids.GroupId, usr *user.User, accessByGroupAsMember *ids.GroupId) (*group.Group, error) {
	owner := groupOwner(usr, accessByGroupAsMember)
	if g, ok := c.Cache.GetGroup(owner, groupId); ok {
		return g, nil
	}
	g, err := c.fetchGroup(ctx, groupId, usr, accessByGroupAsMember, false)
	if err != nil {
		return nil, err
	}
	c.Cache.InsertGroup(owner, groupId, g)
	return g, nil
}

func (c *Client) fetchGroup(ctx context.Context, groupId ids.GroupId, usr *user.User, accessByGroupAsMember *ids.GroupId, treatAsParent bool) (*group.Group, error) {
	api := c.Cfg.GroupApi()
	data, res, err := group.PrepareFetchGroup(ctx, api, groupId, usr.Jwt(), usr, nil, treatAsParent)
	if err != nil {
		return nil, err
	}

	var parentGroup *group.Group
	switch res.Kind {
	case group.FetchMissingUserKeys:
		return nil, sdkerr.New(sdkerr.KindGroupFetchUserKeyNotFound)
	case group.FetchMissingGroupKeys:
		if data.ParentGroupId == nil {
			return nil, sdkerr.ParentGroupKeyNotFoundButRequired(string(groupId))
		}
		parentId := ids.GroupId(*data.ParentGroupId)
		parentOwner := groupOwner(usr, accessByGroupAsMember)
		if cached, ok := c.Cache.GetGroup(parentOwner, parentId); ok {
			parentGroup = cached
		} else {
			parentGroup, err = c.fetchGroup(ctx, parentId, usr, accessByGroupAsMember, true)
			if err != nil {
				return nil, err
			}
			c.Cache.InsertGroup(parentOwner, parentId, parentGroup)
		}
	}

	return group.DoneFetchGroup(data, usr, parentGroup, c.Cfg.BaseURL, c.Cfg.AppToken, accessByGroupAsMember, treatAsParent)
}

// InviteUser seals g's accessible key history to invitee's newest
// public key.
func (c *Client) InviteUser(ctx context.Context, g *group.Group, usr *user.User, invitee transport.UserPublicKeyData, rank int32) error {
	return group.InviteUser(ctx, c.Cfg.GroupApi(), g, usr.Jwt(), invitee, rank)
}

// ReInviteUser repeats InviteUser against a previously kicked member.
func (c *Client) ReInviteUser(ctx context.Context, g *group.Group, usr *user.User, invitee transport.UserPublicKeyData, rank int32) error {
	return group.ReInviteUser(ctx, c.Cfg.GroupApi(), g, usr.Jwt(), invitee, rank)
}

// KickUser removes a member from g.
func (c *Client) KickUser(ctx context.Context, g *group.Group, usr *user.User, userId string) error {
	return group.KickUser(ctx, c.Cfg.GroupApi(), g, usr.Jwt(), userId)
}

// StartKeyRotation begins a rotation on g and immediately fetches back
// its own new key version, so the initiator's keyring already holds
// the new key when this returns; every other member converges on it
// later through FinishKeyRotation. sign is optional: when non-nil, the
// new group key sealed under the ephemeral key (the ciphertext every
// member receives) carries a verifiable signature.
func (c *Client) StartKeyRotation(ctx context.Context, g *group.Group, usr *user.User, ancestor *group.Group,
	symAlg, asymAlg cryptomat.Algorithm, sign cryptomat.SignKey) (*group.Group, error) {

	return group.PrepareKeyRotation(ctx, c.Cfg.GroupApi(), g, usr, ancestor, symAlg, asymAlg, sign)
}

// FinishKeyRotation polls and finishes every pending rotation on g,
// retrying up to Cfg.RotationRetries passes for rotations blocked on a
// not-yet-seen previous_group_key_id. When verify is set, rotations
// carrying a signature are checked against the signer's verify key,
// fetched through the Cache on first use; unsigned rotations are
// processed either way.
func (c *Client) FinishKeyRotation(ctx context.Context, g *group.Group, usr *user.User, ancestor *group.Group, verify bool) error {
	var resolver group.VerifyKeyResolver
	if verify {
		resolver = c.resolveVerifyKey
	}
	return group.FinishKeyRotation(ctx, c.Cfg.GroupApi(), g, usr, ancestor, resolver, c.Cfg.RotationRetries)
}

// resolveVerifyKey serves rotation signature checks from the Cache's
// verify-key map, falling through to the server once per
// (user, key id).
func (c *Client) resolveVerifyKey(ctx context.Context, signedByUserId, signKeyId string) (cryptomat.VerifyKey, error) {
	data, ok := c.Cache.GetUserVerifyKey(ids.UserId(signedByUserId), signKeyId)
	if !ok {
		var err error
		data, err = c.Cfg.UserApi().FetchUserVerifyKey(ctx, signedByUserId, signKeyId)
		if err != nil {
			return nil, err
		}
		c.Cache.InsertUserVerifyKey(ids.UserId(signedByUserId), data)
	}
	return cryptomat.NewVerifyKey(cryptomat.Algorithm(data.Alg), data.Id, data.VerifyKey)
}

// StartRotationWatcher launches a background sweep that auto-finishes
// rotations across every group currently in Cache. The returned handle
// must be Stopped when usr logs out.
func (c *Client) StartRotationWatcher(usr *user.User) *cache.RotationWatcher {
	return cache.NewRotationWatcher(c.Cache, c.Cfg.GroupApi(), usr, c.Cfg.Logger, c.Cfg.RotationRetries)
}

// UploadFile generates a fresh content key sealed to recipientPub,
// registers and streams in, and returns the new file's id.
func (c *Client) UploadFile(ctx context.Context, jwt string, symAlg cryptomat.Algorithm, masterKeyId string,
	recipientPub cryptomat.AsymPublicKey, in file.UploadInput) (ids.FileId, error) {

	contentKey, encKey, err := file.GenerateNonRegisteredKey(symAlg, masterKeyId, recipientPub)
	if err != nil {
		return "", err
	}
	in.Api = c.Cfg.FileApi()
	in.Jwt = jwt
	in.ContentKey = contentKey
	in.EncryptedKey = encKey
	return file.Upload(ctx, in)
}

// DownloadFile recovers the content key via recipientPriv and streams
// the decrypted file into in.Writer.
func (c *Client) DownloadFile(ctx context.Context, jwt string, recipientPriv cryptomat.AsymPrivateKey,
	encKey transport.GeneratedSymKeyHeadServerOutput, in file.DownloadInput) error {

	contentKey, err := file.GetNonRegisteredKey(recipientPriv, encKey)
	if err != nil {
		return err
	}
	in.Api = c.Cfg.FileApi()
	in.Jwt = jwt
	in.ContentKey = contentKey
	return file.Download(ctx, in)
}

// DeleteFile removes a file and its parts; subsequent downloads of the
// same id fail server-side.
func (c *Client) DeleteFile(ctx context.Context, jwt string, fileId ids.FileId) error {
	return c.Cfg.FileApi().DeleteFile(ctx, string(fileId), jwt)
}
