package user

import (
	"encoding/base64"
	"encoding/json"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/keys"
	"github.com/sentclose/sentc-go/sdkerr"
)

// deviceKeysWire flattens the device keypairs to raw, base64-encoded
// key material plus the algorithm tags needed to reconstruct them
// through the cryptomat registry.
type deviceKeysWire struct {
	AsymAlg        cryptomat.Algorithm `json:"asym_alg"`
	SignAlg        cryptomat.Algorithm `json:"sign_alg"`
	RawPrivate     string              `json:"raw_private"`
	RawPublic      string              `json:"raw_public"`
	RawSign        string              `json:"raw_sign"`
	RawVerify      string              `json:"raw_verify"`
	ExportedPublic string              `json:"exported_public,omitempty"`
	ExportedVerify string              `json:"exported_verify,omitempty"`
}

// userWire is the persisted form of a User. Keystore seals this blob
// under a KEK; it is never written anywhere in plaintext by the SDK
// itself.
type userWire struct {
	UserId         ids.UserId   `json:"user_id"`
	UserIdentifier string       `json:"user_identifier"`
	DeviceId       ids.DeviceId `json:"device_id"`

	Jwt          string `json:"jwt"`
	RefreshToken string `json:"refresh_token"`
	Mfa          bool   `json:"mfa"`

	Device deviceKeysWire `json:"device"`

	Keys        []KeyVersion `json:"user_keys"`
	NewestKeyId ids.KeyId    `json:"newest_key_id"`

	HmacKeys []keys.Hmac `json:"hmac_keys,omitempty"`

	BaseUrl  string `json:"base_url"`
	AppToken string `json:"app_token"`
}

func rawB64(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	re, ok := v.(cryptomat.RawExporter)
	if !ok {
		return "", sdkerr.Newf(sdkerr.KindSdk, "user: %T does not support raw export", v)
	}
	return base64.StdEncoding.EncodeToString(re.Raw()), nil
}

func unRawB64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	return b, nil
}

// ToString serializes u for persistence.
func (u *User) ToString() (string, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	rawPriv, err := rawB64(u.Device.Private)
	if err != nil {
		return "", err
	}
	rawPub, err := rawB64(u.Device.Public)
	if err != nil {
		return "", err
	}
	rawSign, err := rawB64(u.Device.Sign)
	if err != nil {
		return "", err
	}
	rawVerify, err := rawB64(u.Device.Verify)
	if err != nil {
		return "", err
	}

	w := userWire{
		UserId:         u.userId,
		UserIdentifier: u.userIdentifier,
		DeviceId:       u.deviceId,
		Jwt:            u.jwt,
		RefreshToken:   u.refreshToken,
		Mfa:            u.mfa,
		Device: deviceKeysWire{
			AsymAlg:        u.Device.Private.Algorithm(),
			SignAlg:        u.Device.Sign.Algorithm(),
			RawPrivate:     rawPriv,
			RawPublic:      rawPub,
			RawSign:        rawSign,
			RawVerify:      rawVerify,
			ExportedPublic: base64.StdEncoding.EncodeToString(u.Device.ExportedPublic),
			ExportedVerify: base64.StdEncoding.EncodeToString(u.Device.ExportedVerify),
		},
		Keys:        u.Keys.All(),
		NewestKeyId: u.Keys.NewestId(),
		HmacKeys:    u.HmacKeys,
		BaseUrl:     u.BaseUrl,
		AppToken:    u.AppToken,
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", sdkerr.Newf(sdkerr.KindJsonToStringFailed, "%v", err)
	}
	return string(b), nil
}

// FromString reverses ToString, reconstructing the device keys through
// the registry and rebuilding the keyring index and newest pointer.
func FromString(s string) (*User, error) {
	var w userWire
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	if len(w.Keys) == 0 {
		return nil, sdkerr.New(sdkerr.KindNoGroupKeysFound)
	}

	rawPriv, err := unRawB64(w.Device.RawPrivate)
	if err != nil {
		return nil, err
	}
	rawPub, err := unRawB64(w.Device.RawPublic)
	if err != nil {
		return nil, err
	}
	rawSign, err := unRawB64(w.Device.RawSign)
	if err != nil {
		return nil, err
	}
	rawVerify, err := unRawB64(w.Device.RawVerify)
	if err != nil {
		return nil, err
	}
	exportedPub, err := unRawB64(w.Device.ExportedPublic)
	if err != nil {
		return nil, err
	}
	exportedVerify, err := unRawB64(w.Device.ExportedVerify)
	if err != nil {
		return nil, err
	}

	priv, err := cryptomat.NewAsymPrivateKey(w.Device.AsymAlg, "", rawPriv)
	if err != nil {
		return nil, err
	}
	pub, err := cryptomat.NewAsymPublicKey(w.Device.AsymAlg, "", rawPub)
	if err != nil {
		return nil, err
	}
	sign, err := cryptomat.NewSignKey(w.Device.SignAlg, "", rawSign)
	if err != nil {
		return nil, err
	}
	verify, err := cryptomat.NewVerifyKey(w.Device.SignAlg, "", rawVerify)
	if err != nil {
		return nil, err
	}

	device := DeviceKeys{
		Private:        priv,
		Public:         pub,
		Sign:           sign,
		Verify:         verify,
		ExportedPublic: exportedPub,
		ExportedVerify: exportedVerify,
	}

	u, err := New(w.UserId, w.UserIdentifier, w.DeviceId, w.Jwt, w.RefreshToken, w.Mfa,
		device, w.Keys[0], w.BaseUrl, w.AppToken)
	if err != nil {
		return nil, err
	}
	for _, kv := range w.Keys[1:] {
		if err := u.ExtendKey(kv); err != nil {
			return nil, err
		}
	}
	if w.NewestKeyId != "" {
		if err := u.SetNewestKeyId(w.NewestKeyId); err != nil {
			return nil, err
		}
	}
	u.HmacKeys = w.HmacKeys
	return u, nil
}
