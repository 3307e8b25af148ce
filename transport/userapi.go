package transport

import (
	"context"
	"net/http"
)

// UserKeyServerOutput is one user master-key version as the server
// returns it: the group-key-equivalent symmetric key sealed to the
// device public key, the private and sign keys sealed under that
// symmetric key, and the public and verify keys in the clear.
type UserKeyServerOutput struct {
	UserKeyId               string `json:"user_key_id"`
	Time                    uint64 `json:"time"`
	EncryptedGroupKey       []byte `json:"encrypted_master_key"`
	EncryptedPrivateKey     []byte `json:"encrypted_private_key"`
	EncryptedSignKey        []byte `json:"encrypted_sign_key"`
	PublicKey               []byte `json:"public_key"`
	VerifyKey               []byte `json:"verify_key"`
	KeypairAlg              string `json:"keypair_alg"`
	SignKeyAlg              string `json:"sign_keypair_alg"`
	MasterKeyAlg            string `json:"master_key_alg"`
}

// RegisterData is everything a registration request uploads: the
// device's own exported keypairs (so the server can address future
// logins to this device) plus the first master-key version, already
// sealed under the device's public key and under the password-derived
// key, by the caller before the request is built.
type RegisterData struct {
	UserIdentifier        string `json:"user_identifier"`
	MasterKey             UserKeyServerOutput `json:"master_key"`
	DerivedEncryptedPrivateKey []byte `json:"derived_encrypted_private_key"`
	DerivedEncryptedSignKey    []byte `json:"derived_encrypted_sign_key"`
	DerivedPublicKey           []byte `json:"derived_public_key"`
	DerivedVerifyKey           []byte `json:"derived_verify_key"`
	DerivedAlg                 string `json:"derived_alg"`
	ClientRandomValue          []byte `json:"client_random_value"`
	HashedAuthenticationKey    []byte `json:"hashed_authentication_key"`
}

// PrepareLoginOutput carries the server-side password-derivation
// parameters (salt et al.) a client needs before it can derive the
// authentication key and, separately, decrypt the device keypair.
type PrepareLoginOutput struct {
	Salt           []byte `json:"salt"`
	DerivedAlg     string `json:"derived_alg"`
	LoginServerOutput []byte `json:"login_server_output"`
}

// DoneLoginOutput is what the server returns once the authentication key
// derived from PrepareLoginOutput matches: a JWT, refresh token, and the
// device-sealed master key material.
type DoneLoginOutput struct {
	Jwt                 string                `json:"jwt"`
	RefreshToken        string                `json:"refresh_token"`
	UserId              string                `json:"user_id"`
	DeviceId            string                `json:"device_id"`
	Mfa                 bool                  `json:"mfa"`
	DeviceKeys          DeviceKeysServerOutput `json:"device_keys"`
	UserKeys            []UserKeyServerOutput `json:"user_keys"`
}

// DeviceKeysServerOutput is the per-device keypair the server stores for
// this device, sealed under the password-derived key.
type DeviceKeysServerOutput struct {
	EncryptedPrivateKey []byte `json:"encrypted_private_key"`
	EncryptedSignKey    []byte `json:"encrypted_sign_key"`
	PublicKey           []byte `json:"public_key"`
	VerifyKey           []byte `json:"verify_key"`
	KeypairAlg          string `json:"keypair_alg"`
	SignKeyAlg          string `json:"sign_keypair_alg"`
}

// UserApi is the seam between user registration/login/rotation and the
// network. Password hashing and device-keypair decryption are performed
// locally against the opaque bytes these calls return; the core never
// sees a server-held plaintext key.
type UserApi interface {
	CheckUserNameAvailable(ctx context.Context, userIdentifier string) (bool, error)
	PrepareRegister(ctx context.Context, data RegisterData) (userId string, err error)
	PrepareLogin(ctx context.Context, userIdentifier string) (PrepareLoginOutput, error)
	DoneLogin(ctx context.Context, userIdentifier string, hashedAuthKey []byte) (DoneLoginOutput, error)
	ChangePassword(ctx context.Context, jwt string, oldHashedAuthKey, newClientRandomValue, newHashedAuthKey []byte,
		newEncryptedPrivateKey, newEncryptedSignKey []byte) error
	FetchUserPublicKey(ctx context.Context, userId string) (UserPublicKeyData, error)
	FetchUserVerifyKey(ctx context.Context, userId, verifyKeyId string) (UserVerifyKeyData, error)
}

// HttpUserApi is the default UserApi implementation.
type HttpUserApi struct {
	Doer     Doer
	BaseUrl  string
	AppToken string
}

func NewHttpUserApi(doer Doer, baseUrl, appToken string) *HttpUserApi {
	return &HttpUserApi{Doer: doer, BaseUrl: baseUrl, AppToken: appToken}
}

func (c *HttpUserApi) do(ctx context.Context, method, path, jwt string, body, out any) error {
	api := &HttpGroupApi{Doer: c.Doer, BaseUrl: c.BaseUrl, AppToken: c.AppToken}
	return api.do(ctx, method, path, jwt, body, out)
}

func (c *HttpUserApi) CheckUserNameAvailable(ctx context.Context, userIdentifier string) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, http.MethodGet, "/user/exists/"+userIdentifier, "", nil, &out)
	return out.Available, err
}

func (c *HttpUserApi) PrepareRegister(ctx context.Context, data RegisterData) (string, error) {
	var out struct {
		UserId string `json:"user_id"`
	}
	err := c.do(ctx, http.MethodPost, "/register", "", data, &out)
	return out.UserId, err
}

func (c *HttpUserApi) PrepareLogin(ctx context.Context, userIdentifier string) (PrepareLoginOutput, error) {
	var out PrepareLoginOutput
	err := c.do(ctx, http.MethodPost, "/login/prepare", "", map[string]string{"user_identifier": userIdentifier}, &out)
	return out, err
}

func (c *HttpUserApi) DoneLogin(ctx context.Context, userIdentifier string, hashedAuthKey []byte) (DoneLoginOutput, error) {
	var out DoneLoginOutput
	err := c.do(ctx, http.MethodPost, "/login/done", "", map[string]any{
		"user_identifier":     userIdentifier,
		"hashed_authentication_key": hashedAuthKey,
	}, &out)
	return out, err
}

func (c *HttpUserApi) ChangePassword(ctx context.Context, jwt string, oldHashedAuthKey, newClientRandomValue, newHashedAuthKey,
	newEncryptedPrivateKey, newEncryptedSignKey []byte) error {
	return c.do(ctx, http.MethodPut, "/user/password", jwt, map[string]any{
		"old_hashed_authentication_key": oldHashedAuthKey,
		"new_client_random_value":      newClientRandomValue,
		"new_hashed_authentication_key": newHashedAuthKey,
		"new_encrypted_private_key":    newEncryptedPrivateKey,
		"new_encrypted_sign_key":       newEncryptedSignKey,
	}, nil)
}

func (c *HttpUserApi) FetchUserPublicKey(ctx context.Context, userId string) (UserPublicKeyData, error) {
	var out UserPublicKeyData
	err := c.do(ctx, http.MethodGet, "/user/"+userId+"/public_key", "", nil, &out)
	return out, err
}

func (c *HttpUserApi) FetchUserVerifyKey(ctx context.Context, userId, verifyKeyId string) (UserVerifyKeyData, error) {
	var out UserVerifyKeyData
	err := c.do(ctx, http.MethodGet, "/user/"+userId+"/verify_key/"+verifyKeyId, "", nil, &out)
	return out, err
}
