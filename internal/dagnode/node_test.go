package dagnode

import (
	"testing"

	"github.com/intercoop-network/dag-core/internal/identity"
)

func mustKeyPair(t *testing.T) *identity.KeyPair {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	return kp
}

func TestSignAndVerify(t *testing.T) {
	kp := mustKeyPair(t)
	payload, err := NewJSONPayload(map[string]interface{}{"type": "FederationGenesis"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	n := NewNode(payload, nil, kp.Did, Metadata{Timestamp: 1, Scope: ScopeFederation, FederationID: "fed:test"})
	sn, err := Sign(n, kp)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := sn.VerifySignature(identity.SelfResolver{}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestCIDStableAndContentAddressed(t *testing.T) {
	kp := mustKeyPair(t)
	payload, _ := NewJSONPayload(map[string]interface{}{"type": "FederationGenesis"})
	n := NewNode(payload, nil, kp.Did, Metadata{Timestamp: 1, Scope: ScopeFederation, FederationID: "fed:test"})
	sn1, err := Sign(n, kp)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c1, err := sn1.CID()
	if err != nil {
		t.Fatalf("cid: %v", err)
	}
	sn2, err := Sign(n, kp)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c2, err := sn2.CID()
	if err != nil {
		t.Fatalf("cid: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected identical cid for identical node, got %s vs %s", c1, c2)
	}
}

func TestStorageRoundTrip(t *testing.T) {
	kp := mustKeyPair(t)
	payload, _ := NewJSONPayload(map[string]interface{}{"type": "FederationGenesis"})
	n := NewNode(payload, nil, kp.Did, Metadata{Timestamp: 1, Scope: ScopeFederation, FederationID: "fed:test"})
	sn, err := Sign(n, kp)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	blob, err := sn.MarshalForStorage()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := UnmarshalSignedNode(blob)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := out.VerifySignature(identity.SelfResolver{}); err != nil {
		t.Fatalf("verify roundtripped node: %v", err)
	}
	c1, _ := sn.CID()
	c2, _ := out.CID()
	if c1 != c2 {
		t.Fatalf("expected stable cid across roundtrip")
	}
}

func TestValidateRejectsDuplicateParents(t *testing.T) {
	kp := mustKeyPair(t)
	payload, _ := NewJSONPayload(map[string]interface{}{"type": "FederationGenesis"})
	n := Node{Payload: payload, Parents: []string{"a", "a"}, Author: string(kp.Did), Metadata: Metadata{Scope: ScopeFederation}}
	if err := n.Validate(); err == nil {
		t.Fatalf("expected duplicate parent rejection")
	}
}

func TestValidateRequiresScopeID(t *testing.T) {
	kp := mustKeyPair(t)
	payload, _ := NewJSONPayload(map[string]interface{}{"type": "x"})
	n := Node{Payload: payload, Author: string(kp.Did), Metadata: Metadata{Scope: ScopeCooperative}}
	if err := n.Validate(); err == nil {
		t.Fatalf("expected scope_id requirement to be enforced")
	}
}

func TestActionTypeExtraction(t *testing.T) {
	p1, _ := NewJSONPayload(map[string]interface{}{"type": "Proposal", "action_type": "mint_token"})
	if at, ok := p1.ActionType(); !ok || at != "mint_token" {
		t.Fatalf("expected action_type mint_token, got %q ok=%v", at, ok)
	}
	p2, _ := NewJSONPayload(map[string]interface{}{"type": "SubmitProposal"})
	if at, ok := p2.ActionType(); !ok || at != "submitproposal" {
		t.Fatalf("expected lowercase type fallback, got %q ok=%v", at, ok)
	}
	p3 := NewRawPayload([]byte("x"))
	if _, ok := p3.ActionType(); ok {
		t.Fatalf("expected raw payload to be exempt from action extraction")
	}
}
