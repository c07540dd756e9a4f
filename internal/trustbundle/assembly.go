package trustbundle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/quorum"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Coordinator runs the bundle assembly protocol: construct a bundle over a
// tip frontier, collect signer responses until the quorum predicate is
// satisfied (further signatures still accepted), then finalize. The
// assembly session id is a non-content-addressed correlation identifier
// from github.com/google/uuid.
type Coordinator struct {
	SessionID string
	Bundle    Bundle
	deadline  time.Time
}

// NewCoordinator starts an assembly session for a bundle referencing tips,
// abandoning collection after collectFor elapses.
func NewCoordinator(federationID string, tips []cid.Cid, config quorum.Config, now time.Time, collectFor time.Duration) *Coordinator {
	refs := make([]string, len(tips))
	for i, t := range tips {
		refs[i] = t.String()
	}
	return &Coordinator{
		SessionID: uuid.New().String(),
		Bundle: Bundle{
			FederationID:     federationID,
			ReferencedEvents: refs,
			QuorumConfig:     config,
			Timestamp:        now.Unix(),
		},
		deadline: now.Add(collectFor),
	}
}

// Expired reports whether the collection window has elapsed as of now.
func (c *Coordinator) Expired(now time.Time) bool {
	return now.After(c.deadline)
}

// CollectSignature merges a signer's response (signature over the hash the
// signer independently computed) into the bundle proof without verifying
// it; signatures are verified by QuorumReached and Finalize. It only
// rejects a second response from a signer already present in the proof.
func (c *Coordinator) CollectSignature(signer identity.Did, sig []byte) error {
	for _, e := range c.Bundle.Proof.Entries {
		if e.Signer == signer {
			return utils.New(utils.KindSignature, "duplicate signature from "+string(signer))
		}
	}
	c.Bundle.Proof.Entries = append(c.Bundle.Proof.Entries, quorum.SignaturePair{Signer: signer, Signature: sig})
	return nil
}

// QuorumReached reports whether the accumulated signatures already satisfy
// the configured quorum predicate, resolving each signer's key via
// resolver.
func (c *Coordinator) QuorumReached(resolver identity.PublicKeyResolver) (bool, error) {
	hash, err := c.Bundle.Hash()
	if err != nil {
		return false, err
	}
	valid, err := quorum.ValidSigners(hash, c.Bundle.Proof, resolver)
	if err != nil {
		return false, err
	}
	return c.Bundle.QuorumConfig.Satisfied(valid), nil
}

// Finalize verifies the accumulated bundle meets quorum and returns the
// sealed bundle plus its Cid, ready to be anchored as a TrustBundleRef
// payload.
func (c *Coordinator) Finalize(ctx context.Context, resolver identity.PublicKeyResolver) (Bundle, cid.Cid, error) {
	select {
	case <-ctx.Done():
		return Bundle{}, cid.Undef, utils.New(utils.KindCancelled, "bundle finalize cancelled")
	default:
	}
	if err := Verify(c.Bundle, resolver, VerificationOptions{RejectOnBadSignature: true}); err != nil {
		return Bundle{}, cid.Undef, err
	}
	cidVal, _, err := CID(c.Bundle)
	if err != nil {
		return Bundle{}, cid.Undef, err
	}
	return c.Bundle, cidVal, nil
}
