package user

import (
	"context"
	"crypto/rand"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/keys"
	"github.com/sentclose/sentc-go/sdkerr"
	"github.com/sentclose/sentc-go/transport"
)

// LoginInput names the identifier/password pair and the primitive
// family the caller expects the account to use; a mismatch surfaces as
// a decrypt failure against the server's returned ciphertexts rather
// than a dedicated error, mirroring how a wrong password fails.
type LoginInput struct {
	UserIdentifier string
	Password       string
	Hasher         cryptomat.PwHasher
	SymAlg         cryptomat.Algorithm
	BaseUrl        string
	AppToken       string
}

// Login derives the authentication key from PrepareLoginOutput's salt,
// submits it, and — on success — decrypts the device keypair and every
// returned master UserKeyVersion into a ready-to-use *User. A wrong
// password fails at DoneLogin with the server's rejection (surfaced as
// KindSdk), never locally, since the client cannot tell the two apart
// before asking the server.
func Login(ctx context.Context, api transport.UserApi, in LoginInput) (*User, error) {
	prep, err := api.PrepareLogin(ctx, in.UserIdentifier)
	if err != nil {
		return nil, err
	}
	authKey, err := in.Hasher.Derive(in.Password, authSaltOf(prep.Salt))
	if err != nil {
		return nil, err
	}

	out, err := api.DoneLogin(ctx, in.UserIdentifier, authKey)
	if err != nil {
		return nil, err
	}
	if out.Mfa {
		return nil, sdkerr.New(sdkerr.KindUserMfaRequired)
	}

	derivedKey, err := in.Hasher.Derive(in.Password, prep.Salt)
	if err != nil {
		return nil, err
	}
	pwKey, err := cryptomat.NewSymKey(in.SymAlg, "", derivedKey)
	if err != nil {
		return nil, err
	}

	device, err := decryptDeviceKeys(pwKey, out.DeviceKeys)
	if err != nil {
		return nil, err
	}

	if len(out.UserKeys) == 0 {
		return nil, sdkerr.New(sdkerr.KindNoGroupKeysFound)
	}
	versions := make([]KeyVersion, 0, len(out.UserKeys))
	for _, k := range out.UserKeys {
		kv, err := decryptUserKeyVersion(device, k)
		if err != nil {
			return nil, err
		}
		versions = append(versions, kv)
	}

	u, err := New(ids.UserId(out.UserId), in.UserIdentifier, ids.DeviceId(out.DeviceId), out.Jwt, out.RefreshToken,
		out.Mfa, device, versions[0], in.BaseUrl, in.AppToken)
	if err != nil {
		return nil, err
	}
	for _, kv := range versions[1:] {
		if err := u.ExtendKey(kv); err != nil {
			return nil, err
		}
	}
	if err := u.SetNewestKeyId(versions[0].Id); err != nil {
		return nil, err
	}
	return u, nil
}

func decryptDeviceKeys(pwKey cryptomat.SymKey, out transport.DeviceKeysServerOutput) (DeviceKeys, error) {
	rawPriv, err := pwKey.DecryptRaw(cryptomat.EncryptedHead{}, out.EncryptedPrivateKey, nil)
	if err != nil {
		return DeviceKeys{}, sdkerr.Wrap(err)
	}
	rawSign, err := pwKey.DecryptRaw(cryptomat.EncryptedHead{}, out.EncryptedSignKey, nil)
	if err != nil {
		return DeviceKeys{}, sdkerr.Wrap(err)
	}

	asymAlg := cryptomat.Algorithm(out.KeypairAlg)
	priv, err := cryptomat.NewAsymPrivateKey(asymAlg, "", rawPriv)
	if err != nil {
		return DeviceKeys{}, err
	}
	pub, err := cryptomat.NewAsymPublicKey(asymAlg, "", out.PublicKey)
	if err != nil {
		return DeviceKeys{}, err
	}

	signAlg := cryptomat.Algorithm(out.SignKeyAlg)
	sign, err := cryptomat.NewSignKey(signAlg, "", rawSign)
	if err != nil {
		return DeviceKeys{}, err
	}
	verify, err := cryptomat.NewVerifyKey(signAlg, "", out.VerifyKey)
	if err != nil {
		return DeviceKeys{}, err
	}

	return DeviceKeys{
		Private:        priv,
		Public:         pub,
		Sign:           sign,
		Verify:         verify,
		ExportedPublic: out.PublicKey,
		ExportedVerify: out.VerifyKey,
	}, nil
}

func decryptUserKeyVersion(device DeviceKeys, k transport.UserKeyServerOutput) (KeyVersion, error) {
	rawGroupKey, err := device.Private.Decrypt(k.EncryptedGroupKey)
	if err != nil {
		return KeyVersion{}, sdkerr.Wrap(err)
	}
	symAlg := cryptomat.Algorithm(k.MasterKeyAlg)
	symKey, err := cryptomat.NewSymKey(symAlg, k.UserKeyId, rawGroupKey)
	if err != nil {
		return KeyVersion{}, err
	}

	rawPriv, err := symKey.DecryptRaw(cryptomat.EncryptedHead{Id: k.UserKeyId}, k.EncryptedPrivateKey, nil)
	if err != nil {
		return KeyVersion{}, sdkerr.Wrap(err)
	}
	asymAlg := cryptomat.Algorithm(k.KeypairAlg)
	asymPriv, err := cryptomat.NewAsymPrivateKey(asymAlg, k.UserKeyId, rawPriv)
	if err != nil {
		return KeyVersion{}, err
	}
	asymPub, err := cryptomat.NewAsymPublicKey(asymAlg, k.UserKeyId, k.PublicKey)
	if err != nil {
		return KeyVersion{}, err
	}

	rawSign, err := symKey.DecryptRaw(cryptomat.EncryptedHead{Id: k.UserKeyId}, k.EncryptedSignKey, nil)
	if err != nil {
		return KeyVersion{}, sdkerr.Wrap(err)
	}
	signAlg := cryptomat.Algorithm(k.SignKeyAlg)
	signKey, err := cryptomat.NewSignKey(signAlg, k.UserKeyId, rawSign)
	if err != nil {
		return KeyVersion{}, err
	}
	verifyKey, err := cryptomat.NewVerifyKey(signAlg, k.UserKeyId, k.VerifyKey)
	if err != nil {
		return KeyVersion{}, err
	}

	return KeyVersion{
		Id:   ids.KeyId(k.UserKeyId),
		Group: keys.Symmetric{Id: ids.KeyId(k.UserKeyId), Alg: symAlg, Key: symKey, Time: k.Time},
		Asym: keys.AsymKeyPair{Id: ids.KeyId(k.UserKeyId), Alg: asymAlg, Private: asymPriv, Public: asymPub, ExportedPublic: k.PublicKey},
		Sign: keys.SignKeyPair{Id: ids.KeyId(k.UserKeyId), Alg: signAlg, Sign: signKey, Verify: verifyKey, ExportedVerify: k.VerifyKey},
		Time: k.Time,
	}, nil
}

// ChangePassword fetches the account's current salt, re-derives the
// old authentication key against it, generates a fresh salt and
// authentication/unlock key for the new password, and re-encrypts the
// already-decrypted device keypair (no round trip needed to fetch it,
// since usr already holds it) under the new unlock key.
func ChangePassword(ctx context.Context, api transport.UserApi, usr *User, hasher cryptomat.PwHasher,
	symAlg cryptomat.Algorithm, oldPassword, newPassword string) error {

	prep, err := api.PrepareLogin(ctx, usr.Identifier())
	if err != nil {
		return err
	}
	oldAuthKey, err := hasher.Derive(oldPassword, authSaltOf(prep.Salt))
	if err != nil {
		return err
	}

	newClientRandomValue := make([]byte, hasher.SaltSize())
	if _, err := rand.Read(newClientRandomValue); err != nil {
		return sdkerr.Wrap(err)
	}
	newAuthKey, err := hasher.Derive(newPassword, authSaltOf(newClientRandomValue))
	if err != nil {
		return err
	}
	newDerivedKey, err := hasher.Derive(newPassword, newClientRandomValue)
	if err != nil {
		return err
	}
	newPwKey, err := cryptomat.NewSymKey(symAlg, "", newDerivedKey)
	if err != nil {
		return err
	}

	rawPriv, err := rawOf(usr.Device.Private)
	if err != nil {
		return err
	}
	rawSign, err := rawOf(usr.Device.Sign)
	if err != nil {
		return err
	}
	_, newEncPriv, err := newPwKey.EncryptRaw(rawPriv)
	if err != nil {
		return sdkerr.Wrap(err)
	}
	_, newEncSign, err := newPwKey.EncryptRaw(rawSign)
	if err != nil {
		return sdkerr.Wrap(err)
	}

	return api.ChangePassword(ctx, usr.Jwt(), oldAuthKey, newClientRandomValue, newAuthKey, newEncPriv, newEncSign)
}
