// Package trustbundle implements federation-scoped state anchors carrying
// multi-signer quorum proofs over referenced DAG events, using
// internal/canon for hashing and internal/quorum for the signature-quorum
// predicate.
package trustbundle

import (
	"crypto/sha256"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/quorum"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Bundle is a federation-scoped state anchor.
type Bundle struct {
	FederationID     string            `cbor:"federation_id"`
	ReferencedEvents []string          `cbor:"referenced_events"` // cid strings
	QuorumConfig     quorum.Config     `cbor:"quorum_config"`
	Proof            quorum.Proof      `cbor:"proof"`
	Timestamp        int64             `cbor:"timestamp"`
	Metadata         map[string]string `cbor:"metadata,omitempty"`
}

// hashable produces the bundle with Proof cleared: the DAG-CBOR
// serialization of the bundle with the proof field absent.
func (b Bundle) hashable() Bundle {
	cp := b
	cp.Proof = quorum.Proof{}
	return cp
}

// Hash computes the SHA-256 bundle hash every signer signs over.
func (b Bundle) Hash() ([]byte, error) {
	raw, err := canon.Encode(b.hashable())
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}

// Sign appends kp's signature over the bundle hash to b.Proof, mutating a
// copy and returning it; bundles are otherwise immutable post-construction.
func (b Bundle) Sign(kp *identity.KeyPair) (Bundle, error) {
	hash, err := b.Hash()
	if err != nil {
		return Bundle{}, err
	}
	sig := kp.Sign(hash)
	out := b
	out.Proof.Entries = append(append([]quorum.SignaturePair{}, b.Proof.Entries...), quorum.SignaturePair{
		Signer:    kp.Did,
		Signature: sig,
	})
	return out, nil
}

// VerificationOptions controls bundle verification strictness.
type VerificationOptions struct {
	// RejectOnBadSignature rejects the whole bundle if any signature fails
	// to verify. If false, bad signatures are dropped from the counted
	// signer set instead.
	RejectOnBadSignature bool
	// KnownEvents, if non-nil, is the snapshot of event Cids against which
	// ReferencedEvents existence is checked. A nil set skips this check
	// (deferred to an online existence check against the DAG Store).
	KnownEvents map[string]struct{}
}

// Verify recomputes the bundle hash, checks each signature, applies the
// quorum predicate over verified participants, and (if options.KnownEvents
// is set) checks referenced-event existence.
func Verify(b Bundle, resolver identity.PublicKeyResolver, opts VerificationOptions) error {
	hash, err := b.Hash()
	if err != nil {
		return err
	}
	if err := quorum.Verify(b.QuorumConfig, hash, b.Proof, resolver, opts.RejectOnBadSignature); err != nil {
		return err
	}
	if opts.KnownEvents != nil {
		for _, ev := range b.ReferencedEvents {
			if _, ok := opts.KnownEvents[ev]; !ok {
				return utils.New(utils.KindStructural, "referenced event not present in snapshot: "+ev)
			}
		}
	}
	return nil
}

// CID computes the content identifier of the finalized (fully signed)
// bundle.
func CID(b Bundle) (cid.Cid, []byte, error) {
	raw, err := canon.Encode(b)
	if err != nil {
		return cid.Undef, nil, err
	}
	c, err := canon.ComputeCID(raw)
	if err != nil {
		return cid.Undef, nil, err
	}
	return c, raw, nil
}
