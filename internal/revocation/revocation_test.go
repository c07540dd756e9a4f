package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/identity"
)

func TestSignAndVerify(t *testing.T) {
	issuer, _ := identity.GenerateKeyPair()
	subject, _ := identity.GenerateKeyPair()
	now := time.Unix(1_700_000_000, 0).UTC()

	notice := NewDidRevocation("fed:a", subject.Did, "key compromise", issuer.Did, now, now)
	signed, err := notice.Sign(issuer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := signed.Verify(identity.SelfResolver{}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedSubject(t *testing.T) {
	issuer, _ := identity.GenerateKeyPair()
	subject, _ := identity.GenerateKeyPair()
	now := time.Unix(1_700_000_000, 0).UTC()

	notice := NewDidRevocation("fed:a", subject.Did, "key compromise", issuer.Did, now, now)
	signed, err := notice.Sign(issuer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signed.Subject.Reason = "tampered"
	if err := signed.Verify(identity.SelfResolver{}); err == nil {
		t.Fatalf("expected signature verification to fail after tampering")
	}
}

func TestRegistryProspectivity(t *testing.T) {
	issuer, _ := identity.GenerateKeyPair()
	subject, _ := identity.GenerateKeyPair()
	effective := time.Unix(1_700_000_100, 0).UTC()
	issuedAt := time.Unix(1_700_000_000, 0).UTC()

	notice := NewDidRevocation("fed:a", subject.Did, "rotated out", issuer.Did, effective, issuedAt)
	signed, err := notice.Sign(issuer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	reg := NewRegistry(nil, identity.SelfResolver{})
	if err := reg.Register(context.Background(), signed); err != nil {
		t.Fatalf("register: %v", err)
	}

	before := effective.Add(-time.Second)
	if reg.IsDidRevoked(subject.Did, before) {
		t.Fatalf("revocation must not apply before its effective date")
	}
	if !reg.IsDidRevoked(subject.Did, effective) {
		t.Fatalf("revocation must apply at its effective date")
	}
	after := effective.Add(time.Hour)
	if !reg.IsDidRevoked(subject.Did, after) {
		t.Fatalf("revocation must apply after its effective date")
	}
}

func TestRegistryCredentialRevocation(t *testing.T) {
	issuer, _ := identity.GenerateKeyPair()
	effective := time.Unix(1_700_000_000, 0).UTC()
	c, err := canon.ComputeCID([]byte("some-credential-bytes"))
	if err != nil {
		t.Fatalf("dummy cid: %v", err)
	}

	notice := NewCredentialRevocation("fed:a", c, "issuer compromised", issuer.Did, effective, effective)
	signed, err := notice.Sign(issuer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	reg := NewRegistry(nil, identity.SelfResolver{})
	if err := reg.Register(context.Background(), signed); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !reg.IsCredentialRevoked(c.String(), effective) {
		t.Fatalf("expected credential to be revoked")
	}
}
