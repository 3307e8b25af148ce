package user

import (
	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/sdkerr"
)

// EncryptRaw seals data under the user's newest master symmetric key,
// framed binary (length-prefixed head + ciphertext), with no signature
// attached.
func (u *User) EncryptRaw(data []byte) ([]byte, error) {
	return u.EncryptRawWithAad(data, nil)
}

func (u *User) EncryptRawWithAad(data, aad []byte) ([]byte, error) {
	kv, ok := u.GetNewestKey()
	if !ok {
		return nil, sdkerr.KeyRequired("")
	}
	head, ct, err := kv.Group.Key.EncryptRawWithAad(data, aad)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return cryptomat.JoinHeadAndData(head, ct)
}

// EncryptRawWithSign additionally attaches a detached signature over
// the plaintext, produced with the user's newest sign key.
func (u *User) EncryptRawWithSign(data []byte) ([]byte, error) {
	kv, ok := u.GetNewestKey()
	if !ok {
		return nil, sdkerr.KeyRequired("")
	}
	head, ct, err := kv.Group.Key.EncryptRaw(data)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	sig, err := kv.Sign.Sign.Sign(data)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	head.Sign = &cryptomat.SignHead{Id: kv.Sign.Sign.KeyId(), Alg: string(kv.Sign.Alg), Detached: true, Signature: sig}
	return cryptomat.JoinHeadAndData(head, ct)
}

// DecryptRaw opens framed binary ciphertext against the master key
// version named in its head, failing with KeyRequired if that version
// is not (yet) loaded. verify is optional: pass nil to skip signature
// verification even if the ciphertext carries one.
func (u *User) DecryptRaw(framed []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	return u.DecryptRawWithAad(framed, nil, verify)
}

func (u *User) DecryptRawWithAad(framed, aad []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	head, ct, err := cryptomat.SplitHeadAndData(framed)
	if err != nil {
		return nil, err
	}
	kv, ok := u.GetKeyVersion(ids.KeyId(head.Id))
	if !ok {
		return nil, sdkerr.KeyRequired(head.Id)
	}
	plain, err := kv.Group.Key.DecryptRawWithAad(head, ct, aad, verify)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return plain, nil
}

// Encrypt/Decrypt operate on the text-framed form (head-json + '.' +
// base64url(ciphertext)).
func (u *User) Encrypt(data []byte) (string, error) {
	kv, ok := u.GetNewestKey()
	if !ok {
		return "", sdkerr.KeyRequired("")
	}
	head, ct, err := kv.Group.Key.EncryptRaw(data)
	if err != nil {
		return "", sdkerr.Wrap(err)
	}
	return cryptomat.JoinHeadAndEncryptedString(head, ct)
}

func (u *User) Decrypt(s string, verify cryptomat.VerifyKey) ([]byte, error) {
	head, ct, err := cryptomat.SplitHeadAndEncryptedString(s)
	if err != nil {
		return nil, err
	}
	kv, ok := u.GetKeyVersion(ids.KeyId(head.Id))
	if !ok {
		return nil, sdkerr.KeyRequired(head.Id)
	}
	plain, err := kv.Group.Key.DecryptRawWithAad(head, ct, nil, verify)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return plain, nil
}

// EncryptAsym seals data to another user's public key, framed so the
// recipient's DecryptAsym can pick the right private key version from
// the head. sign is optional: when non-nil, a detached signature over
// the plaintext travels in the head for the recipient to opt into
// verifying.
func (u *User) EncryptAsym(data []byte, recipient cryptomat.AsymPublicKey, sign cryptomat.SignKey) ([]byte, error) {
	ct, err := recipient.Encrypt(data)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	head := cryptomat.EncryptedHead{Id: recipient.KeyId()}
	if sign != nil {
		sig, err := sign.Sign(data)
		if err != nil {
			return nil, sdkerr.Wrap(err)
		}
		head.Sign = &cryptomat.SignHead{Id: sign.KeyId(), Alg: string(sign.Algorithm()), Detached: true, Signature: sig}
	}
	return cryptomat.JoinHeadAndData(head, ct)
}

// DecryptAsym opens ciphertext another user sealed to one of this
// user's public key versions. verify is optional; when supplied its id
// must match the head's signer id.
func (u *User) DecryptAsym(framed []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	head, ct, err := cryptomat.SplitHeadAndData(framed)
	if err != nil {
		return nil, err
	}
	kv, ok := u.GetKeyVersion(ids.KeyId(head.Id))
	if !ok {
		return nil, sdkerr.KeyRequired(head.Id)
	}
	plain, err := kv.Asym.Private.Decrypt(ct)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	if head.Sign != nil && verify != nil {
		if head.Sign.Id != verify.KeyId() {
			return nil, sdkerr.Newf(sdkerr.KindSdk, "user: verify key id mismatch")
		}
		ok, err := verify.Verify(plain, head.Sign.Signature)
		if err != nil {
			return nil, sdkerr.Wrap(err)
		}
		if !ok {
			return nil, sdkerr.Newf(sdkerr.KindSdk, "user: signature verification failed")
		}
	}
	return plain, nil
}
