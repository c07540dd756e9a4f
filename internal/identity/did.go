// Package identity implements the Did principal type and Ed25519 key
// material the governance core signs and verifies with.
package identity

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"

	"github.com/intercoop-network/dag-core/pkg/utils"
)

// ed25519MulticodecPrefix is the multicodec varint prefix (0xed, 0x01)
// identifying an Ed25519 public key inside a did:key identifier.
var ed25519MulticodecPrefix = []byte{0xed, 0x01}

// Did is a stable decentralized identifier string. Equality is string
// equality; comparison is total.
type Did string

func (d Did) String() string { return string(d) }

// DidFromPublicKey builds a did:key identifier from an Ed25519 public key,
// multibase-base58btc encoding the multicodec-prefixed key bytes.
func DidFromPublicKey(pub ed25519.PublicKey) (Did, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", utils.New(utils.KindStructural, "invalid ed25519 public key length")
	}
	raw := make([]byte, 0, len(ed25519MulticodecPrefix)+len(pub))
	raw = append(raw, ed25519MulticodecPrefix...)
	raw = append(raw, pub...)
	enc, err := multibase.Encode(multibase.Base58BTC, raw)
	if err != nil {
		return "", utils.Wrap(utils.KindStructural, err, "multibase encode")
	}
	return Did("did:key:" + enc), nil
}

// PublicKey recovers the Ed25519 public key embedded in a did:key
// identifier.
func (d Did) PublicKey() (ed25519.PublicKey, error) {
	const prefix = "did:key:"
	s := string(d)
	if !strings.HasPrefix(s, prefix) {
		return nil, utils.New(utils.KindStructural, fmt.Sprintf("not a did:key identifier: %q", s))
	}
	_, raw, err := multibase.Decode(s[len(prefix):])
	if err != nil {
		return nil, utils.Wrap(utils.KindStructural, err, "multibase decode")
	}
	if len(raw) != len(ed25519MulticodecPrefix)+ed25519.PublicKeySize {
		return nil, utils.New(utils.KindStructural, "unexpected did:key payload length")
	}
	if raw[0] != ed25519MulticodecPrefix[0] || raw[1] != ed25519MulticodecPrefix[1] {
		return nil, utils.New(utils.KindStructural, "unsupported did:key codec (only ed25519 supported)")
	}
	return ed25519.PublicKey(raw[len(ed25519MulticodecPrefix):]), nil
}

// KeyPair holds an Ed25519 key pair and its derived Did. Private key
// material is held in memory only by the signing component that owns it,
// per the concurrency model's "key material never shared across tasks"
// rule.
type KeyPair struct {
	Did        Did
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 key pair and its did:key identity.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, utils.Wrap(utils.KindStructural, err, "generate ed25519 key")
	}
	did, err := DidFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Did: did, PublicKey: pub, PrivateKey: priv}, nil
}

// KeyPairFromSeed derives a deterministic key pair from a 32-byte seed,
// mirroring core/wallet.go's NewHDWalletFromSeed entry point but without HD
// derivation (the core does not need hierarchical wallets, only stable
// signing identities).
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, utils.New(utils.KindStructural, fmt.Sprintf("seed must be %d bytes", ed25519.SeedSize))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	did, err := DidFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Did: did, PublicKey: pub, PrivateKey: priv}, nil
}

// Sign signs msg, returning a 64-byte Ed25519 signature.
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.PrivateKey, msg)
}

// Verify checks sig over msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// PublicKeyResolver resolves a Did to its current Ed25519 public key. The
// DAG Store and quorum verifiers depend only on this interface — resolution
// may be a local keyring lookup or a network DID lookup, and is never
// performed inside a signature check itself.
type PublicKeyResolver interface {
	ResolvePublicKey(did Did) (ed25519.PublicKey, error)
}

// SelfResolver resolves a Did directly from its embedded did:key material,
// with no network or keyring lookup. It is the default resolver: any
// did:key identifier is self-certifying.
type SelfResolver struct{}

func (SelfResolver) ResolvePublicKey(did Did) (ed25519.PublicKey, error) {
	return did.PublicKey()
}

// Keyring is a simple in-memory PublicKeyResolver for Dids whose public key
// is not (or is no longer) recoverable from the identifier itself, e.g.
// rotated keys. It falls back to SelfResolver for unregistered Dids.
type Keyring struct {
	keys map[Did]ed25519.PublicKey
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[Did]ed25519.PublicKey)}
}

func (k *Keyring) Register(did Did, pub ed25519.PublicKey) {
	k.keys[did] = pub
}

func (k *Keyring) ResolvePublicKey(did Did) (ed25519.PublicKey, error) {
	if pub, ok := k.keys[did]; ok {
		return pub, nil
	}
	return did.PublicKey()
}
