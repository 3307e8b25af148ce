package user

import (
	"context"
	"crypto/rand"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/sdkerr"
	"github.com/sentclose/sentc-go/transport"
)

// authSaltOf derives a second, distinct salt from the client random
// value so the local unlock key (used to decrypt the device keypair)
// and the server-held authentication key never come from the same
// derivation, even though both start from the same password and
// client-chosen randomness.
func authSaltOf(clientRandomValue []byte) []byte {
	out := make([]byte, len(clientRandomValue))
	for i, b := range clientRandomValue {
		out[i] = b ^ 0xFF
	}
	return out
}

// RegisterInput names the algorithm families used for a fresh
// registration; the caller picks std or fipsprofile tags per their
// compliance posture, same as group creation and key rotation do.
type RegisterInput struct {
	UserIdentifier string
	Password       string
	Hasher         cryptomat.PwHasher
	SymAlg         cryptomat.Algorithm
	AsymAlg        cryptomat.Algorithm
	SignAlg        cryptomat.Algorithm
}

// Register builds the full RegisterData payload locally: a fresh
// device keypair sealed under the password-derived unlock key, and the
// first UserKeyVersion (the master "user-group" symmetric key plus its
// own asymmetric and sign keypairs) sealed under the device public key
// and under itself. The server never sees plaintext key material, only
// these ciphertexts and the two public halves.
func Register(in RegisterInput) (transport.RegisterData, error) {
	if in.UserIdentifier == "" {
		return transport.RegisterData{}, sdkerr.New(sdkerr.KindUsernameOrPasswordRequired)
	}
	if in.Password == "" {
		return transport.RegisterData{}, sdkerr.New(sdkerr.KindUsernameOrPasswordRequired)
	}

	clientRandomValue := make([]byte, in.Hasher.SaltSize())
	if _, err := rand.Read(clientRandomValue); err != nil {
		return transport.RegisterData{}, sdkerr.Wrap(err)
	}
	derivedKey, err := in.Hasher.Derive(in.Password, clientRandomValue)
	if err != nil {
		return transport.RegisterData{}, err
	}
	authKey, err := in.Hasher.Derive(in.Password, authSaltOf(clientRandomValue))
	if err != nil {
		return transport.RegisterData{}, err
	}
	pwKey, err := cryptomat.NewSymKey(in.SymAlg, "", derivedKey)
	if err != nil {
		return transport.RegisterData{}, err
	}

	devicePriv, devicePub, err := cryptomat.GenerateAsymKeyPair(in.AsymAlg, "")
	if err != nil {
		return transport.RegisterData{}, err
	}
	deviceSign, deviceVerify, err := cryptomat.GenerateSignKeyPair(in.SignAlg, "")
	if err != nil {
		return transport.RegisterData{}, err
	}
	rawDevicePriv, err := rawOf(devicePriv)
	if err != nil {
		return transport.RegisterData{}, err
	}
	rawDevicePub, err := rawOf(devicePub)
	if err != nil {
		return transport.RegisterData{}, err
	}
	rawDeviceSign, err := rawOf(deviceSign)
	if err != nil {
		return transport.RegisterData{}, err
	}
	rawDeviceVerify, err := rawOf(deviceVerify)
	if err != nil {
		return transport.RegisterData{}, err
	}

	_, derivedEncPriv, err := pwKey.EncryptRaw(rawDevicePriv)
	if err != nil {
		return transport.RegisterData{}, sdkerr.Wrap(err)
	}
	_, derivedEncSign, err := pwKey.EncryptRaw(rawDeviceSign)
	if err != nil {
		return transport.RegisterData{}, sdkerr.Wrap(err)
	}

	groupKey, err := cryptomat.GenerateSymKey(in.SymAlg, "")
	if err != nil {
		return transport.RegisterData{}, err
	}
	masterPriv, masterPub, err := cryptomat.GenerateAsymKeyPair(in.AsymAlg, "")
	if err != nil {
		return transport.RegisterData{}, err
	}
	masterSign, masterVerify, err := cryptomat.GenerateSignKeyPair(in.SignAlg, "")
	if err != nil {
		return transport.RegisterData{}, err
	}
	rawGroupKey, err := rawOf(groupKey)
	if err != nil {
		return transport.RegisterData{}, err
	}
	rawMasterPriv, err := rawOf(masterPriv)
	if err != nil {
		return transport.RegisterData{}, err
	}
	rawMasterPub, err := rawOf(masterPub)
	if err != nil {
		return transport.RegisterData{}, err
	}
	rawMasterSign, err := rawOf(masterSign)
	if err != nil {
		return transport.RegisterData{}, err
	}
	rawMasterVerify, err := rawOf(masterVerify)
	if err != nil {
		return transport.RegisterData{}, err
	}

	encGroupKeyByDevice, err := devicePub.Encrypt(rawGroupKey)
	if err != nil {
		return transport.RegisterData{}, err
	}
	_, encMasterPrivByGroupKey, err := groupKey.EncryptRaw(rawMasterPriv)
	if err != nil {
		return transport.RegisterData{}, sdkerr.Wrap(err)
	}
	_, encMasterSignByGroupKey, err := groupKey.EncryptRaw(rawMasterSign)
	if err != nil {
		return transport.RegisterData{}, sdkerr.Wrap(err)
	}

	return transport.RegisterData{
		UserIdentifier: in.UserIdentifier,
		MasterKey: transport.UserKeyServerOutput{
			EncryptedGroupKey:   encGroupKeyByDevice,
			EncryptedPrivateKey: encMasterPrivByGroupKey,
			EncryptedSignKey:    encMasterSignByGroupKey,
			PublicKey:           rawMasterPub,
			VerifyKey:           rawMasterVerify,
			KeypairAlg:          string(in.AsymAlg),
			SignKeyAlg:          string(in.SignAlg),
			MasterKeyAlg:        string(in.SymAlg),
		},
		DerivedEncryptedPrivateKey: derivedEncPriv,
		DerivedEncryptedSignKey:    derivedEncSign,
		DerivedPublicKey:           rawDevicePub,
		DerivedVerifyKey:           rawDeviceVerify,
		DerivedAlg:                 string(in.Hasher.Algorithm()),
		ClientRandomValue:          clientRandomValue,
		HashedAuthenticationKey:    authKey,
	}, nil
}

// DoRegister is the staged network round trip: build the payload, then
// submit it. Split out from Register so callers that want to inspect
// or persist the payload before sending can do so (e.g. CAPTCHA-gated
// registration, out of scope here but a natural caller of this split).
func DoRegister(ctx context.Context, api transport.UserApi, in RegisterInput) (ids.UserId, error) {
	data, err := Register(in)
	if err != nil {
		return "", err
	}
	id, err := api.PrepareRegister(ctx, data)
	if err != nil {
		return "", err
	}
	return ids.UserId(id), nil
}

func rawOf(v any) ([]byte, error) {
	re, ok := v.(cryptomat.RawExporter)
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "user: %T does not support raw export", v)
	}
	return re.Raw(), nil
}
