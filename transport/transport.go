// Package transport defines the wire DTOs exchanged with the server
// and the Doer abstraction the rest of the SDK issues requests
// through. HTTP plumbing, JSON (de)serialization of these DTOs, and JWT
// parsing are explicitly out of scope for the core — Doer is the seam
// where a concrete HTTP client (or, in tests, an in-memory fake) plugs
// in.
package transport

import (
	"context"
	"net/http"
)

// Doer is satisfied by *http.Client and by test fakes. It is the only
// way the core ever reaches the network.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request describes one server round trip: method, path, JWT, body and
// a context carrying any timeout. No code in this module builds or
// consumes a Request; the Http*Api types build *http.Request values
// directly and send them through a Doer.
type Request struct {
	Ctx    context.Context
	Method string
	Path   string
	Jwt    string
	Body   []byte
}

// GroupKeyServerOutput is one key version as the server returns it.
// EncryptedGroupKey is sealed asymmetrically to the member's
// (user's or ancestor group's) current public key named by
// UserPublicKeyId; EncryptedPrivateGroupKey is sealed symmetrically
// under the group key it travels alongside; PublicGroupKey is plain.
type GroupKeyServerOutput struct {
	GroupKeyId               string `json:"group_key_id"`
	UserPublicKeyId          string `json:"user_public_key_id"`
	Time                     uint64 `json:"time"`
	EncryptedGroupKey        []byte `json:"encrypted_group_key"`
	EncryptedPrivateGroupKey []byte `json:"encrypted_private_group_key"`
	PublicGroupKey           []byte `json:"public_group_key"`
	KeyPairId                string `json:"key_pair_id"`
	GroupKeyAlg              string `json:"group_key_alg"`
	KeyPairAlg               string `json:"key_pair_alg"`
}

// GroupHmacData carries an encrypted searchable-index key.
type GroupHmacData struct {
	Id                           string `json:"id"`
	Alg                          string `json:"alg"`
	EncryptedHmacKey             []byte `json:"encrypted_hmac_key"`
	EncryptedHmacEncryptionKeyId string `json:"encrypted_hmac_encryption_key_id"`
}

// GroupSortableData carries an encrypted sortable-encoding key.
type GroupSortableData struct {
	Id                               string `json:"id"`
	Alg                              string `json:"alg"`
	EncryptedSortableKey             []byte `json:"encrypted_sortable_key"`
	EncryptedSortableEncryptionKeyId string `json:"encrypted_sortable_encryption_key_id"`
}

// GroupOutData is the full group-fetch payload (one page worth, before
// pagination merges).
type GroupOutData struct {
	GroupId               string                 `json:"group_id"`
	ParentGroupId         *string                `json:"parent_group_id,omitempty"`
	KeyUpdate             bool                   `json:"key_update"`
	CreatedTime           uint64                 `json:"created_time"`
	JoinedTime            uint64                 `json:"joined_time"`
	Rank                  int32                  `json:"rank"`
	IsConnectedGroup      bool                   `json:"is_connected_group"`
	AccessByParentGroup   *string                `json:"access_by_parent_group,omitempty"`
	AccessByGroupAsMember *string                `json:"access_by_group_as_member,omitempty"`
	Keys                  []GroupKeyServerOutput `json:"keys"`
	HmacKeys              []GroupHmacData        `json:"hmac_keys"`
	SortableKeys          []GroupSortableData    `json:"sortable_keys"`
}

// KeyRotationInput is one pending rotation as returned by the rotation
// poll. The initiator publishes the ephemeral key sealed under
// PreviousGroupKeyId; the server then wraps that ciphertext once more
// under each member's public key before handing it out, so a
// participant proves possession of a current private key before it can
// even reach the previous-group-key layer. EncryptedEphKeyKeyId names
// the public key the server used for this member's copy — the access
// path resolver maps it to the matching private key (the user's own, or
// an ancestor group's). EncryptedNewGroupKeyByEphKey is the new group's
// real symmetric key sealed under the ephemeral key, shared verbatim by
// all members; a signature, when present, covers those bytes.
type KeyRotationInput struct {
	NewGroupKeyId                         string  `json:"new_group_key_id"`
	PreviousGroupKeyId                    string  `json:"previous_group_key_id"`
	EncryptedEphKeyKeyId                  string  `json:"encrypted_eph_key_key_id"`
	EncryptedEphKeyByGroupKeyAndPublicKey []byte  `json:"encrypted_eph_key_by_group_key_and_public_key"`
	EncryptedNewGroupKeyByEphKey          []byte  `json:"encrypted_new_group_key_by_eph_key"`
	NewGroupKeyAlg                        string  `json:"new_group_key_alg"`
	SignedByUserId                        *string `json:"signed_by_user_id,omitempty"`
	SignedByUserSignKeyId                 *string `json:"signed_by_user_sign_key_id,omitempty"`
	Signature                             []byte  `json:"signature,omitempty"`
}

// UserPublicKeyData is the exported public-key blob distributed by the
// server for asymmetric sealing to a user.
type UserPublicKeyData struct {
	Id        string `json:"id"`
	PublicKey []byte `json:"public_key"`
	Alg       string `json:"alg"`
}

// UserVerifyKeyData is the exported verify-key blob.
type UserVerifyKeyData struct {
	Id        string `json:"id"`
	VerifyKey []byte `json:"verify_key"`
	Alg       string `json:"alg"`
}

// GeneratedSymKeyHeadServerOutput is what the server stores for a
// non-registered symmetric key (files, ad-hoc encryption): the content
// key sealed to the recipient's public key, plus the id of the master
// key used.
type GeneratedSymKeyHeadServerOutput struct {
	Alg          string `json:"alg"`
	MasterKeyId  string `json:"master_key_id"`
	EncryptedKey []byte `json:"encrypted_key"`
}

// EncryptedFilePart is one chunk's metadata.
type EncryptedFilePart struct {
	PartId        string `json:"part_id"`
	Sequence      int    `json:"sequence"`
	ExternStorage bool   `json:"extern_storage"`
}

// FileMetaOutput is the full file record: registration info plus the
// ordered, possibly paginated, part list.
type FileMetaOutput struct {
	FileId            string              `json:"file_id"`
	MasterKeyId       string              `json:"master_key_id"`
	EncryptedKey      []byte              `json:"encrypted_key"`
	EncryptedFileName []byte              `json:"encrypted_file_name,omitempty"`
	Parts             []EncryptedFilePart `json:"part_list"`
	BelongsToGroup    *string             `json:"belongs_to_group,omitempty"`
	BelongsToUser     *string             `json:"belongs_to_user,omitempty"`
}
