package group

import (
	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/sdkerr"
)

// EncryptRaw seals data under the group's newest key, framed binary
// (length-prefixed head + ciphertext), with no signature attached.
func (g *Group) EncryptRaw(data []byte) ([]byte, error) {
	return g.EncryptRawWithAad(data, nil)
}

func (g *Group) EncryptRawWithAad(data, aad []byte) ([]byte, error) {
	kv, ok := g.GetNewestKey()
	if !ok {
		return nil, sdkerr.KeyRequired("")
	}
	head, ct, err := kv.Sym.Key.EncryptRawWithAad(data, aad)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return cryptomat.JoinHeadAndData(head, ct)
}

// EncryptRawWithSign additionally attaches a detached signature over
// the plaintext, produced with sign.
func (g *Group) EncryptRawWithSign(data []byte, sign cryptomat.SignKey) ([]byte, error) {
	return g.EncryptRawWithAadAndSign(data, nil, sign)
}

func (g *Group) EncryptRawWithAadAndSign(data, aad []byte, sign cryptomat.SignKey) ([]byte, error) {
	kv, ok := g.GetNewestKey()
	if !ok {
		return nil, sdkerr.KeyRequired("")
	}
	head, ct, err := kv.Sym.Key.EncryptRawWithAad(data, aad)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	if sign != nil {
		sig, err := sign.Sign(data)
		if err != nil {
			return nil, err
		}
		head.Sign = &cryptomat.SignHead{Id: sign.KeyId(), Alg: string(sign.Algorithm()), Detached: true, Signature: sig}
	}
	return cryptomat.JoinHeadAndData(head, ct)
}

// DecryptRaw opens framed binary ciphertext against the key version
// named in its head, failing with KeyRequired if that version is not
// (yet) in the keyring. verify is optional: pass nil to skip signature
// verification even if the ciphertext carries one.
func (g *Group) DecryptRaw(framed []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	return g.DecryptRawWithAad(framed, nil, verify)
}

func (g *Group) DecryptRawWithAad(framed, aad []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	head, ct, err := cryptomat.SplitHeadAndData(framed)
	if err != nil {
		return nil, err
	}
	kv, ok := g.GetGroupKey(head.Id)
	if !ok {
		return nil, sdkerr.KeyRequired(head.Id)
	}
	plain, err := kv.Sym.Key.DecryptRawWithAad(head, ct, aad, verify)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return plain, nil
}

// Encrypt/Decrypt operate on the text-framed form (head-json + '.' +
// base64url(ciphertext)), used wherever the ciphertext travels through
// a JSON field or other text-only transport.
func (g *Group) Encrypt(data []byte) (string, error) {
	return g.EncryptWithAad(data, nil)
}

func (g *Group) EncryptWithAad(data, aad []byte) (string, error) {
	kv, ok := g.GetNewestKey()
	if !ok {
		return "", sdkerr.KeyRequired("")
	}
	head, ct, err := kv.Sym.Key.EncryptRawWithAad(data, aad)
	if err != nil {
		return "", sdkerr.Wrap(err)
	}
	return cryptomat.JoinHeadAndEncryptedString(head, ct)
}

func (g *Group) EncryptWithSign(data []byte, sign cryptomat.SignKey) (string, error) {
	return g.EncryptWithAadAndSign(data, nil, sign)
}

func (g *Group) EncryptWithAadAndSign(data, aad []byte, sign cryptomat.SignKey) (string, error) {
	kv, ok := g.GetNewestKey()
	if !ok {
		return "", sdkerr.KeyRequired("")
	}
	head, ct, err := kv.Sym.Key.EncryptRawWithAad(data, aad)
	if err != nil {
		return "", sdkerr.Wrap(err)
	}
	if sign != nil {
		sig, err := sign.Sign(data)
		if err != nil {
			return "", err
		}
		head.Sign = &cryptomat.SignHead{Id: sign.KeyId(), Alg: string(sign.Algorithm()), Detached: true, Signature: sig}
	}
	return cryptomat.JoinHeadAndEncryptedString(head, ct)
}

func (g *Group) Decrypt(s string, verify cryptomat.VerifyKey) ([]byte, error) {
	return g.DecryptWithAad(s, nil, verify)
}

func (g *Group) DecryptWithAad(s string, aad []byte, verify cryptomat.VerifyKey) ([]byte, error) {
	head, ct, err := cryptomat.SplitHeadAndEncryptedString(s)
	if err != nil {
		return nil, err
	}
	kv, ok := g.GetGroupKey(head.Id)
	if !ok {
		return nil, sdkerr.KeyRequired(head.Id)
	}
	plain, err := kv.Sym.Key.DecryptRawWithAad(head, ct, aad, verify)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return plain, nil
}
