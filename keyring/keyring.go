// Package keyring implements the append-only, indexed key history
// shared by User and Group: an ordered slice plus an id→index map and
// a "newest" pointer. Both entities embed a Keyring[T] rather than
// re-implementing the same bookkeeping.
package keyring

import (
	"sync"

	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/sdkerr"
)

// Entry is satisfied by any key-version container stored in a Keyring
// (keys.Symmetric, keys.AsymKeyPair, keys.SignKeyPair, ...).
type Entry interface {
	KeyIdOf() ids.KeyId
}

// Keyring holds one entity's (User's or Group's) ordered key history.
// The zero value is not usable; construct with New. Keyring is safe
// for concurrent use: callers normally hold the owning entity's own
// read/write lock for the duration of a sequence of calls, but the
// internal mutex protects against direct concurrent use of the same
// Keyring value too.
type Keyring[T Entry] struct {
	mu        sync.RWMutex
	versions  []T
	byId      map[ids.KeyId]int
	newestId  ids.KeyId
	haveFirst bool
}

// New constructs an empty keyring.
func New[T Entry]() *Keyring[T] {
	return &Keyring[T]{byId: make(map[ids.KeyId]int)}
}

// Len reports how many versions are currently stored.
func (k *Keyring[T]) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.versions)
}

// GetNewest returns the version whose id equals the newest pointer, or
// the first inserted version if the pointer has not been explicitly
// set yet (matching the server's newest-first initial-fetch ordering).
func (k *Keyring[T]) GetNewest() (T, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var zero T
	if len(k.versions) == 0 {
		return zero, false
	}
	if k.newestId != "" {
		if idx, ok := k.byId[k.newestId]; ok {
			return k.versions[idx], true
		}
	}
	return k.versions[0], true
}

// GetById looks up a version in O(1) via the id→index map.
func (k *Keyring[T]) GetById(id ids.KeyId) (T, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var zero T
	idx, ok := k.byId[id]
	if !ok {
		return zero, false
	}
	return k.versions[idx], true
}

// Append inserts a new version at the end of the history and updates
// the id→index map. Appending a duplicate id is a logic error — the
// keyring is append-only and ids are assumed unique per entity — and
// returns an error rather than silently shadowing the existing entry.
func (k *Keyring[T]) Append(v T) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := v.KeyIdOf()
	if _, exists := k.byId[id]; exists {
		return sdkerr.Newf(sdkerr.KindSdk, "keyring: duplicate key id %q", id)
	}
	k.byId[id] = len(k.versions)
	k.versions = append(k.versions, v)
	if !k.haveFirst {
		k.newestId = id
		k.haveFirst = true
	}
	return nil
}

// SetNewestId moves the newest pointer, typically called after a
// key-rotation finish decrypts and appends the newly rotated key.
func (k *Keyring[T]) SetNewestId(id ids.KeyId) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.byId[id]; !ok {
		return sdkerr.Newf(sdkerr.KindKeyNotFound, "keyring: cannot set newest to unknown id %q", id)
	}
	k.newestId = id
	return nil
}

// NewestId reports the current newest pointer.
func (k *Keyring[T]) NewestId() ids.KeyId {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.newestId
}

// All returns a snapshot copy of the ordered versions, oldest first as
// stored (insertion order).
func (k *Keyring[T]) All() []T {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]T, len(k.versions))
	copy(out, k.versions)
	return out
}

// Has reports whether an id is present without copying the entry.
func (k *Keyring[T]) Has(id ids.KeyId) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.byId[id]
	return ok
}
