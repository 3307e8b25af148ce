// Package ids defines the opaque identifier types shared across the SDK.
// Every piece of key material, every user, and every group is addressed
// by one of these; none of them carries meaning beyond equality and
// serving as a map key.
package ids

// UserId identifies a registered user.
type UserId string

// GroupId identifies a group, connected or not.
type GroupId string

// DeviceId identifies a single logged-in device belonging to a user.
type DeviceId string

// KeyId identifies one version of key material: a symmetric key, an
// asymmetric keypair, a sign keypair, an HMAC key or a sortable key.
// All five key kinds that make up a single rotation share the same id.
type KeyId string

// FileId identifies one uploaded file's metadata and part list.
type FileId string

func (u UserId) String() string   { return string(u) }
func (g GroupId) String() string  { return string(g) }
func (d DeviceId) String() string { return string(d) }
func (k KeyId) String() string    { return string(k) }
func (f FileId) String() string   { return string(f) }
