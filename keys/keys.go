// Package keys defines the key-id/algorithm-tagged containers that wrap
// the raw cryptomat primitives: Symmetric, AsymKeyPair, SignKeyPair,
// Hmac and Sortable. Each container is a small sum-type-by-tag value —
// the algorithm tag selects which cryptomat family (std, fipsprofile)
// constructed the embedded key, via the family's self-registered
// factory in cryptomat's registry.
package keys

import (
	"encoding/base64"
	"encoding/json"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/sdkerr"
)

// Symmetric is one version of a group's or a non-registered master
// symmetric key.
type Symmetric struct {
	Id   ids.KeyId
	Alg  cryptomat.Algorithm
	Key  cryptomat.SymKey
	Time uint64
}

type symmetricWire struct {
	Id   ids.KeyId          `json:"id"`
	Alg  cryptomat.Algorithm `json:"alg"`
	Raw  string              `json:"raw"`
	Time uint64              `json:"time"`
}

func (s Symmetric) MarshalJSON() ([]byte, error) {
	raw, err := exportRaw(s.Key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(symmetricWire{Id: s.Id, Alg: s.Alg, Raw: b64(raw), Time: s.Time})
}

func (s *Symmetric) UnmarshalJSON(b []byte) error {
	var w symmetricWire
	if err := json.Unmarshal(b, &w); err != nil {
		return sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	raw, err := unb64(w.Raw)
	if err != nil {
		return err
	}
	key, err := cryptomat.NewSymKey(w.Alg, string(w.Id), raw)
	if err != nil {
		return err
	}
	s.Id, s.Alg, s.Key, s.Time = w.Id, w.Alg, key, w.Time
	return nil
}

// AsymKeyPair is one version of a user's or group's asymmetric keypair
// (static, used to receive group-key/content-key material), along with
// the exported public-key blob the server distributes to other
// clients.
type AsymKeyPair struct {
	Id             ids.KeyId
	Alg            cryptomat.Algorithm
	Private        cryptomat.AsymPrivateKey
	Public         cryptomat.AsymPublicKey
	ExportedPublic []byte
}

type asymKeyPairWire struct {
	Id             ids.KeyId           `json:"id"`
	Alg            cryptomat.Algorithm `json:"alg"`
	RawPrivate     string              `json:"raw_private"`
	RawPublic      string              `json:"raw_public"`
	ExportedPublic string              `json:"exported_public,omitempty"`
}

func (k AsymKeyPair) MarshalJSON() ([]byte, error) {
	rawPriv, err := exportRaw(k.Private)
	if err != nil {
		return nil, err
	}
	rawPub, err := exportRaw(k.Public)
	if err != nil {
		return nil, err
	}
	return json.Marshal(asymKeyPairWire{
		Id: k.Id, Alg: k.Alg,
		RawPrivate: b64(rawPriv), RawPublic: b64(rawPub),
		ExportedPublic: b64(k.ExportedPublic),
	})
}

func (k *AsymKeyPair) UnmarshalJSON(b []byte) error {
	var w asymKeyPairWire
	if err := json.Unmarshal(b, &w); err != nil {
		return sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	rawPriv, err := unb64(w.RawPrivate)
	if err != nil {
		return err
	}
	rawPub, err := unb64(w.RawPublic)
	if err != nil {
		return err
	}
	priv, err := cryptomat.NewAsymPrivateKey(w.Alg, string(w.Id), rawPriv)
	if err != nil {
		return err
	}
	pub, err := cryptomat.NewAsymPublicKey(w.Alg, string(w.Id), rawPub)
	if err != nil {
		return err
	}
	exported, err := unb64(w.ExportedPublic)
	if err != nil {
		return err
	}
	k.Id, k.Alg, k.Private, k.Public, k.ExportedPublic = w.Id, w.Alg, priv, pub, exported
	return nil
}

// SignKeyPair is one version of a user's or group's sign/verify
// keypair.
type SignKeyPair struct {
	Id             ids.KeyId
	Alg            cryptomat.Algorithm
	Sign           cryptomat.SignKey
	Verify         cryptomat.VerifyKey
	ExportedVerify []byte
}

type signKeyPairWire struct {
	Id             ids.KeyId           `json:"id"`
	Alg            cryptomat.Algorithm `json:"alg"`
	RawSign        string              `json:"raw_sign"`
	RawVerify      string              `json:"raw_verify"`
	ExportedVerify string              `json:"exported_verify,omitempty"`
}

func (k SignKeyPair) MarshalJSON() ([]byte, error) {
	rawSign, err := exportRaw(k.Sign)
	if err != nil {
		return nil, err
	}
	rawVerify, err := exportRaw(k.Verify)
	if err != nil {
		return nil, err
	}
	return json.Marshal(signKeyPairWire{
		Id: k.Id, Alg: k.Alg,
		RawSign: b64(rawSign), RawVerify: b64(rawVerify),
		ExportedVerify: b64(k.ExportedVerify),
	})
}

func (k *SignKeyPair) UnmarshalJSON(b []byte) error {
	var w signKeyPairWire
	if err := json.Unmarshal(b, &w); err != nil {
		return sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	rawSign, err := unb64(w.RawSign)
	if err != nil {
		return err
	}
	rawVerify, err := unb64(w.RawVerify)
	if err != nil {
		return err
	}
	sign, err := cryptomat.NewSignKey(w.Alg, string(w.Id), rawSign)
	if err != nil {
		return err
	}
	verify, err := cryptomat.NewVerifyKey(w.Alg, string(w.Id), rawVerify)
	if err != nil {
		return err
	}
	exported, err := unb64(w.ExportedVerify)
	if err != nil {
		return err
	}
	k.Id, k.Alg, k.Sign, k.Verify, k.ExportedVerify = w.Id, w.Alg, sign, verify, exported
	return nil
}

// Hmac is a group's searchable-index key.
type Hmac struct {
	Id  ids.KeyId
	Alg cryptomat.Algorithm
	Key cryptomat.HmacKey
}

type hmacWire struct {
	Id  ids.KeyId           `json:"id"`
	Alg cryptomat.Algorithm `json:"alg"`
	Raw string              `json:"raw"`
}

func (h Hmac) MarshalJSON() ([]byte, error) {
	raw, err := exportRaw(h.Key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hmacWire{Id: h.Id, Alg: h.Alg, Raw: b64(raw)})
}

func (h *Hmac) UnmarshalJSON(b []byte) error {
	var w hmacWire
	if err := json.Unmarshal(b, &w); err != nil {
		return sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	raw, err := unb64(w.Raw)
	if err != nil {
		return err
	}
	key, err := cryptomat.NewHmacKeyFromRaw(w.Alg, raw)
	if err != nil {
		return err
	}
	h.Id, h.Alg, h.Key = w.Id, w.Alg, key
	return nil
}

// Sortable is a group's order-preserving-encoding key.
type Sortable struct {
	Id  ids.KeyId
	Alg cryptomat.Algorithm
	Key cryptomat.SortableKey
}

type sortableWire struct {
	Id  ids.KeyId           `json:"id"`
	Alg cryptomat.Algorithm `json:"alg"`
	Raw string              `json:"raw"`
}

func (s Sortable) MarshalJSON() ([]byte, error) {
	raw, err := exportRaw(s.Key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sortableWire{Id: s.Id, Alg: s.Alg, Raw: b64(raw)})
}

func (s *Sortable) UnmarshalJSON(b []byte) error {
	var w sortableWire
	if err := json.Unmarshal(b, &w); err != nil {
		return sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	raw, err := unb64(w.Raw)
	if err != nil {
		return err
	}
	key, err := cryptomat.NewSortableKeyFromRaw(w.Alg, raw)
	if err != nil {
		return err
	}
	s.Id, s.Alg, s.Key = w.Id, w.Alg, key
	return nil
}

// KeyIdOf lets each container satisfy keyring.Entry without the keyring
// package needing to know their field layout.
func (s Symmetric) KeyIdOf() ids.KeyId    { return s.Id }
func (k AsymKeyPair) KeyIdOf() ids.KeyId  { return k.Id }
func (k SignKeyPair) KeyIdOf() ids.KeyId  { return k.Id }
func (h Hmac) KeyIdOf() ids.KeyId         { return h.Id }
func (s Sortable) KeyIdOf() ids.KeyId     { return s.Id }

func exportRaw(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	re, ok := v.(cryptomat.RawExporter)
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "keys: %T does not support export", v)
	}
	return re.Raw(), nil
}

func b64(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func unb64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	return b, nil
}
