package trustbundle

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/quorum"
)

func fakeTip(t *testing.T, label string) cid.Cid {
	t.Helper()
	sum, err := mh.Sum([]byte(label), mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash: %v", err)
	}
	return cid.NewCidV1(0x71, sum)
}

func TestGenesisAndAnchorScenario(t *testing.T) {
	// Federation with 3 participants, Threshold(67), genesis bundle
	// referencing one event, collect 2 signatures.
	kp1, _ := identity.GenerateKeyPair()
	kp2, _ := identity.GenerateKeyPair()
	kp3, _ := identity.GenerateKeyPair()
	config := quorum.Config{
		Type:             quorum.TypeThreshold,
		ThresholdPercent: 67,
		Participants:     []identity.Did{kp1.Did, kp2.Did, kp3.Did},
	}

	tip := fakeTip(t, "federation-genesis")
	coord := NewCoordinator("fed:test", []cid.Cid{tip}, config, time.Unix(1000, 0), time.Minute)

	hash, err := coord.Bundle.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	sig1 := kp1.Sign(hash)
	sig2 := kp2.Sign(hash)
	if err := coord.CollectSignature(kp1.Did, sig1); err != nil {
		t.Fatalf("collect 1: %v", err)
	}
	if err := coord.CollectSignature(kp2.Did, sig2); err != nil {
		t.Fatalf("collect 2: %v", err)
	}

	resolver := identity.SelfResolver{}
	reached, err := coord.QuorumReached(resolver)
	if err != nil {
		t.Fatalf("quorum reached: %v", err)
	}
	if !reached {
		t.Fatalf("expected 2/3 signatures to satisfy 67%% threshold")
	}

	bundle, c1, err := coord.Finalize(context.Background(), resolver)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	_, c2, err := CID(bundle)
	if err != nil {
		t.Fatalf("recompute cid: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected stable bundle cid")
	}

	if err := Verify(bundle, resolver, VerificationOptions{RejectOnBadSignature: true}); err != nil {
		t.Fatalf("verify finalized bundle: %v", err)
	}
}

func TestVerifyRejectsDuplicateSigner(t *testing.T) {
	kp1, _ := identity.GenerateKeyPair()
	config := quorum.Config{Type: quorum.TypeAll, Participants: []identity.Did{kp1.Did}}
	b := Bundle{FederationID: "fed:test", QuorumConfig: config, Timestamp: 1}
	hash, _ := b.Hash()
	sig := kp1.Sign(hash)
	b.Proof.Entries = []quorum.SignaturePair{{Signer: kp1.Did, Signature: sig}, {Signer: kp1.Did, Signature: sig}}

	if err := Verify(b, identity.SelfResolver{}, VerificationOptions{RejectOnBadSignature: true}); err == nil {
		t.Fatalf("expected duplicate signer rejection")
	}
}

func TestVerifyRejectsTamperedBundle(t *testing.T) {
	kp1, _ := identity.GenerateKeyPair()
	config := quorum.Config{Type: quorum.TypeAll, Participants: []identity.Did{kp1.Did}}
	b := Bundle{FederationID: "fed:test", QuorumConfig: config, Timestamp: 1}
	hash, _ := b.Hash()
	sig := kp1.Sign(hash)
	b.Proof.Entries = []quorum.SignaturePair{{Signer: kp1.Did, Signature: sig}}

	tampered := b
	tampered.Timestamp = 2 // invalidates the hash every signer signed
	if err := Verify(tampered, identity.SelfResolver{}, VerificationOptions{RejectOnBadSignature: true}); err == nil {
		t.Fatalf("expected tampered bundle to fail verification")
	}
}
