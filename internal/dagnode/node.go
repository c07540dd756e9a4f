// Package dagnode defines the universal unit of the governance log: the DAG
// Node, its typed payload variants, and the Ed25519-signed envelope stored
// in the DAG Store.
package dagnode

import (
	"crypto/ed25519"
	"sort"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Scope is one of the three governance scopes a node may belong to.
type Scope string

const (
	ScopeFederation  Scope = "federation"
	ScopeCooperative Scope = "cooperative"
	ScopeCommunity   Scope = "community"
)

// Metadata carries the governance-relevant attributes of a node that are
// not part of its payload.
type Metadata struct {
	// Timestamp is the author-supplied Unix time in seconds; it is used for
	// deterministic tie-breaking and voting-window checks.
	Timestamp    int64             `cbor:"timestamp"`
	Scope        Scope             `cbor:"scope"`
	ScopeID      string            `cbor:"scope_id,omitempty"`
	FederationID string            `cbor:"federation_id"`
	Sequence     *uint64           `cbor:"sequence,omitempty"`
	Labels       map[string]string `cbor:"labels,omitempty"`
}

// Node is the unsigned DAG node. Parents is an ordered set of Cids (no
// duplicates); it may be empty for a genesis node.
type Node struct {
	Payload  Payload  `cbor:"payload"`
	Parents  []string `cbor:"parents"` // canonical Cid strings, in author-supplied order
	Author   string   `cbor:"author"`  // Did string
	Metadata Metadata `cbor:"metadata"`
}

// ParentCIDs parses Parents into cid.Cid values.
func (n Node) ParentCIDs() ([]cid.Cid, error) {
	out := make([]cid.Cid, 0, len(n.Parents))
	for _, s := range n.Parents {
		c, err := canon.ParseCID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Validate enforces the structural invariants of §3: no duplicate parents,
// scope_id required unless scope is Federation.
func (n Node) Validate() error {
	seen := make(map[string]struct{}, len(n.Parents))
	for _, p := range n.Parents {
		if _, dup := seen[p]; dup {
			return utils.New(utils.KindStructural, "duplicate parent cid "+p)
		}
		seen[p] = struct{}{}
	}
	if n.Metadata.Scope != ScopeFederation && n.Metadata.ScopeID == "" {
		return utils.New(utils.KindStructural, "scope_id is required unless scope=federation")
	}
	if n.Author == "" {
		return utils.New(utils.KindStructural, "author is required")
	}
	return nil
}

// NewNode constructs a node with parents sorted into a stable order
// (duplicates are kept; Validate rejects them) for callers that do not already have a meaningful order; most
// callers that need parent order preserved (e.g. vote-Cid lists) should set
// Parents directly instead.
func NewNode(payload Payload, parents []cid.Cid, author identity.Did, meta Metadata) Node {
	strs := make([]string, len(parents))
	for i, p := range parents {
		strs[i] = p.String()
	}
	sort.Strings(strs)
	return Node{Payload: payload, Parents: strs, Author: string(author), Metadata: meta}
}

// SignedNode wraps a Node with an Ed25519 signature over the canonical
// DAG-CBOR serialization of the unsigned node, and caches the computed Cid
// after first calculation.
type SignedNode struct {
	Inner     Node   `cbor:"inner"`
	Signature []byte `cbor:"signature"`

	cid     cid.Cid
	cidSet  bool
	rawInner []byte
}

// Sign produces a SignedNode authored and signed by kp.
func Sign(inner Node, kp *identity.KeyPair) (*SignedNode, error) {
	if err := inner.Validate(); err != nil {
		return nil, err
	}
	raw, err := canon.Encode(inner)
	if err != nil {
		return nil, err
	}
	sig := kp.Sign(raw)
	sn := &SignedNode{Inner: inner, Signature: sig, rawInner: raw}
	if _, err := sn.CID(); err != nil {
		return nil, err
	}
	return sn, nil
}

// CID computes (and caches) the content identifier of the unsigned inner
// node. cid(serialize(node)) == node.cid is a fatal invariant if it ever
// disagrees with a previously cached value.
func (sn *SignedNode) CID() (cid.Cid, error) {
	if sn.cidSet {
		return sn.cid, nil
	}
	raw := sn.rawInner
	if raw == nil {
		var err error
		raw, err = canon.Encode(sn.Inner)
		if err != nil {
			return cid.Undef, err
		}
		sn.rawInner = raw
	}
	c, err := canon.ComputeCID(raw)
	if err != nil {
		return cid.Undef, err
	}
	sn.cid = c
	sn.cidSet = true
	return c, nil
}

// VerifySignature checks sn.Signature against the author's resolved public
// key over the canonical encoding of the unsigned inner node.
func (sn *SignedNode) VerifySignature(resolver identity.PublicKeyResolver) error {
	raw := sn.rawInner
	if raw == nil {
		var err error
		raw, err = canon.Encode(sn.Inner)
		if err != nil {
			return err
		}
		sn.rawInner = raw
	}
	pub, err := resolver.ResolvePublicKey(identity.Did(sn.Inner.Author))
	if err != nil {
		return utils.Wrap(utils.KindSignature, err, "resolve author public key")
	}
	if len(pub) != ed25519.PublicKeySize {
		return utils.New(utils.KindSignature, "resolved key is not ed25519")
	}
	if !identity.Verify(pub, raw, sn.Signature) {
		return utils.New(utils.KindSignature, "signature verification failed for "+sn.Inner.Author)
	}
	return nil
}
