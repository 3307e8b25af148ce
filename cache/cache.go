// Package cache is the optional in-process collaborator that shares
// decrypted *user.User and *group.Group handles across callers instead
// of re-fetching and re-decrypting them on every operation: one outer
// lock per map, independent locking of each contained entity, and
// no-op UpdateCacheLayerFor* hooks reserved for a future second (e.g.
// on-disk or distributed) cache tier.
package cache

import (
	"sync"

	"github.com/sentclose/sentc-go/group"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/transport"
	"github.com/sentclose/sentc-go/user"
)

// groupMap indexes a group by the access owner that reached it — a
// UserId for a direct/via-parent access path, or the connected group's
// GroupId for a via-connected-group access path — because the same
// GroupId fetched through two different owners decrypts to two
// independent *group.Group values (see group.Group's doc comment).
type groupMap map[string]map[ids.GroupId]*group.Group

// Cache holds every entity a running session has loaded, each guarded
// independently so that extending one group's keyring never blocks a
// read of another.
type Cache struct {
	groupsMu sync.RWMutex
	groups   groupMap

	usersMu sync.RWMutex
	users   map[ids.UserId]*user.User

	userPublicKeysMu sync.RWMutex
	userPublicKeys   map[ids.UserId]transport.UserPublicKeyData

	groupPublicKeysMu sync.RWMutex
	groupPublicKeys   map[ids.GroupId]transport.UserPublicKeyData

	userVerifyKeysMu sync.RWMutex
	userVerifyKeys   map[ids.UserId]map[string]transport.UserVerifyKeyData

	actualUserMu sync.RWMutex
	actualUser   ids.UserId

	// FilePartUrl, when set, is where file chunk bodies are fetched
	// from instead of BaseUrl.
	FilePartUrl string
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{
		groups:         groupMap{},
		users:          map[ids.UserId]*user.User{},
		userPublicKeys: map[ids.UserId]transport.UserPublicKeyData{},
		groupPublicKeys: map[ids.GroupId]transport.UserPublicKeyData{},
		userVerifyKeys: map[ids.UserId]map[string]transport.UserVerifyKeyData{},
	}
}

func (c *Cache) GetGroup(owner string, groupId ids.GroupId) (*group.Group, bool) {
	c.groupsMu.RLock()
	defer c.groupsMu.RUnlock()
	inner, ok := c.groups[owner]
	if !ok {
		return nil, false
	}
	g, ok := inner[groupId]
	return g, ok
}

func (c *Cache) InsertGroup(owner string, groupId ids.GroupId, g *group.Group) {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	inner, ok := c.groups[owner]
	if !ok {
		inner = map[ids.GroupId]*group.Group{}
		c.groups[owner] = inner
	}
	inner[groupId] = g
}

// UpdateCacheLayerForGroup is a no-op hook called after a group's
// keyring is extended (fetch, rotation finish). Reserved for a future
// second cache tier (e.g. persisting the updated Group to a keystore);
// intentionally does nothing here.
func (c *Cache) UpdateCacheLayerForGroup(owner string, groupId ids.GroupId) {
	_, _ = c.GetGroup(owner, groupId)
}

func (c *Cache) DeleteGroup(owner string, groupId ids.GroupId) {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	if inner, ok := c.groups[owner]; ok {
		delete(inner, groupId)
	}
}

func (c *Cache) GetActualUser() ids.UserId {
	c.actualUserMu.RLock()
	defer c.actualUserMu.RUnlock()
	return c.actualUser
}

func (c *Cache) SetActualUser(userId ids.UserId) {
	c.actualUserMu.Lock()
	defer c.actualUserMu.Unlock()
	c.actualUser = userId
}

func (c *Cache) GetUser(userId ids.UserId) (*user.User, bool) {
	c.usersMu.RLock()
	defer c.usersMu.RUnlock()
	u, ok := c.users[userId]
	return u, ok
}

func (c *Cache) InsertUser(userId ids.UserId, u *user.User) {
	c.usersMu.Lock()
	defer c.usersMu.Unlock()
	c.users[userId] = u
}

// UpdateCacheLayerForUser mirrors UpdateCacheLayerForGroup; a no-op.
func (c *Cache) UpdateCacheLayerForUser(userId ids.UserId) {
	_, _ = c.GetUser(userId)
}

func (c *Cache) DeleteUser(userId ids.UserId) {
	c.usersMu.Lock()
	defer c.usersMu.Unlock()
	delete(c.users, userId)
}

func (c *Cache) GetUserPublicKey(userId ids.UserId) (transport.UserPublicKeyData, bool) {
	c.userPublicKeysMu.RLock()
	defer c.userPublicKeysMu.RUnlock()
	k, ok := c.userPublicKeys[userId]
	return k, ok
}

func (c *Cache) InsertUserPublicKey(userId ids.UserId, key transport.UserPublicKeyData) {
	c.userPublicKeysMu.Lock()
	defer c.userPublicKeysMu.Unlock()
	c.userPublicKeys[userId] = key
}

func (c *Cache) GetGroupPublicKey(groupId ids.GroupId) (transport.UserPublicKeyData, bool) {
	c.groupPublicKeysMu.RLock()
	defer c.groupPublicKeysMu.RUnlock()
	k, ok := c.groupPublicKeys[groupId]
	return k, ok
}

func (c *Cache) InsertGroupPublicKey(groupId ids.GroupId, key transport.UserPublicKeyData) {
	c.groupPublicKeysMu.Lock()
	defer c.groupPublicKeysMu.Unlock()
	c.groupPublicKeys[groupId] = key
}

func (c *Cache) GetUserVerifyKey(userId ids.UserId, verifyKeyId string) (transport.UserVerifyKeyData, bool) {
	c.userVerifyKeysMu.RLock()
	defer c.userVerifyKeysMu.RUnlock()
	inner, ok := c.userVerifyKeys[userId]
	if !ok {
		return transport.UserVerifyKeyData{}, false
	}
	k, ok := inner[verifyKeyId]
	return k, ok
}

func (c *Cache) InsertUserVerifyKey(userId ids.UserId, key transport.UserVerifyKeyData) {
	c.userVerifyKeysMu.Lock()
	defer c.userVerifyKeysMu.Unlock()
	inner, ok := c.userVerifyKeys[userId]
	if !ok {
		inner = map[string]transport.UserVerifyKeyData{}
		c.userVerifyKeys[userId] = inner
	}
	inner[key.Id] = key
}
