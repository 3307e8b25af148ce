package cryptomat

import "github.com/sentclose/sentc-go/sdkerr"

// RawExporter is implemented by every concrete key type so that a
// container can serialize it to persisted state (and the registry can
// reconstruct it on load) without either side depending on the
// concrete std/fipsprofile types.
type RawExporter interface {
	Raw() []byte
}

// The factory function types below are the constructor signature every
// algorithm family registers for each key kind: a small
// self-registering table keyed by the Algorithm tag, populated by each
// family package's init().
type (
	SymKeyFactory      func(id string, raw []byte) (SymKey, error)
	AsymPrivateFactory func(id string, raw []byte) (AsymPrivateKey, error)
	AsymPublicFactory  func(id string, raw []byte) (AsymPublicKey, error)
	SignFactory        func(id string, raw []byte) (SignKey, error)
	VerifyFactory      func(id string, raw []byte) (VerifyKey, error)
	HmacFactory        func(raw []byte) (HmacKey, error)
	SortableFactory    func(raw []byte) (SortableKey, error)

	// Generator factories produce fresh key material instead of
	// reconstructing it from persisted bytes — used by group/user
	// creation, key rotation, and non-registered (file/ad-hoc) key
	// generation, all of which must stay algorithm-family agnostic.
	SymKeyGenFactory  func(id string) (SymKey, error)
	AsymKeyGenFactory func(id string) (AsymPrivateKey, AsymPublicKey, error)
	SignKeyGenFactory func(id string) (SignKey, VerifyKey, error)
	HmacGenFactory    func() (HmacKey, error)
	SortableGenFactory func() (SortableKey, error)
)

var (
	symFactories      = map[Algorithm]SymKeyFactory{}
	asymPrivFactories = map[Algorithm]AsymPrivateFactory{}
	asymPubFactories  = map[Algorithm]AsymPublicFactory{}
	signFactories     = map[Algorithm]SignFactory{}
	verifyFactories   = map[Algorithm]VerifyFactory{}
	hmacFactories     = map[Algorithm]HmacFactory{}
	sortFactories     = map[Algorithm]SortableFactory{}

	symGenFactories      = map[Algorithm]SymKeyGenFactory{}
	asymGenFactories     = map[Algorithm]AsymKeyGenFactory{}
	signGenFactories     = map[Algorithm]SignKeyGenFactory{}
	hmacGenFactories     = map[Algorithm]HmacGenFactory{}
	sortableGenFactories = map[Algorithm]SortableGenFactory{}
)

func RegisterSymKey(alg Algorithm, f SymKeyFactory)           { symFactories[alg] = f }
func RegisterAsymPrivate(alg Algorithm, f AsymPrivateFactory) { asymPrivFactories[alg] = f }
func RegisterAsymPublic(alg Algorithm, f AsymPublicFactory)   { asymPubFactories[alg] = f }
func RegisterSign(alg Algorithm, f SignFactory)               { signFactories[alg] = f }
func RegisterVerify(alg Algorithm, f VerifyFactory)           { verifyFactories[alg] = f }
func RegisterHmac(alg Algorithm, f HmacFactory)               { hmacFactories[alg] = f }
func RegisterSortable(alg Algorithm, f SortableFactory)       { sortFactories[alg] = f }

func RegisterSymKeyGen(alg Algorithm, f SymKeyGenFactory)         { symGenFactories[alg] = f }
func RegisterAsymKeyGen(alg Algorithm, f AsymKeyGenFactory)       { asymGenFactories[alg] = f }
func RegisterSignKeyGen(alg Algorithm, f SignKeyGenFactory)       { signGenFactories[alg] = f }
func RegisterHmacGen(alg Algorithm, f HmacGenFactory)             { hmacGenFactories[alg] = f }
func RegisterSortableGen(alg Algorithm, f SortableGenFactory)     { sortableGenFactories[alg] = f }

func NewSymKey(alg Algorithm, id string, raw []byte) (SymKey, error) {
	f, ok := symFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no sym key factory for algorithm %q", alg)
	}
	return f(id, raw)
}

func NewAsymPrivateKey(alg Algorithm, id string, raw []byte) (AsymPrivateKey, error) {
	f, ok := asymPrivFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no asym private key factory for algorithm %q", alg)
	}
	return f(id, raw)
}

func NewAsymPublicKey(alg Algorithm, id string, raw []byte) (AsymPublicKey, error) {
	f, ok := asymPubFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no asym public key factory for algorithm %q", alg)
	}
	return f(id, raw)
}

func NewSignKey(alg Algorithm, id string, raw []byte) (SignKey, error) {
	f, ok := signFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no sign key factory for algorithm %q", alg)
	}
	return f(id, raw)
}

func NewVerifyKey(alg Algorithm, id string, raw []byte) (VerifyKey, error) {
	f, ok := verifyFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no verify key factory for algorithm %q", alg)
	}
	return f(id, raw)
}

func NewHmacKeyFromRaw(alg Algorithm, raw []byte) (HmacKey, error) {
	f, ok := hmacFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no hmac key factory for algorithm %q", alg)
	}
	return f(raw)
}

func NewSortableKeyFromRaw(alg Algorithm, raw []byte) (SortableKey, error) {
	f, ok := sortFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no sortable key factory for algorithm %q", alg)
	}
	return f(raw)
}

// GenerateSymKey produces a fresh symmetric key in the given family.
func GenerateSymKey(alg Algorithm, id string) (SymKey, error) {
	f, ok := symGenFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no sym key generator for algorithm %q", alg)
	}
	return f(id)
}

// GenerateAsymKeyPair produces a fresh asymmetric keypair in the given family.
func GenerateAsymKeyPair(alg Algorithm, id string) (AsymPrivateKey, AsymPublicKey, error) {
	f, ok := asymGenFactories[alg]
	if !ok {
		return nil, nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no asym key generator for algorithm %q", alg)
	}
	return f(id)
}

// GenerateSignKeyPair produces a fresh sign/verify keypair in the given family.
func GenerateSignKeyPair(alg Algorithm, id string) (SignKey, VerifyKey, error) {
	f, ok := signGenFactories[alg]
	if !ok {
		return nil, nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no sign key generator for algorithm %q", alg)
	}
	return f(id)
}

// GenerateHmacKey produces a fresh searchable-index key in the given family.
func GenerateHmacKey(alg Algorithm) (HmacKey, error) {
	f, ok := hmacGenFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no hmac key generator for algorithm %q", alg)
	}
	return f()
}

// GenerateSortableKey produces a fresh sortable-encoding key in the
// given family. The fips family registers this as an always-failing
// generator since it has no FIPS-validated order-preserving construction.
func GenerateSortableKey(alg Algorithm) (SortableKey, error) {
	f, ok := sortableGenFactories[alg]
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "cryptomat: no sortable key generator for algorithm %q", alg)
	}
	return f()
}
