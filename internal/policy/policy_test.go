package policy

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/membership"
	"github.com/intercoop-network/dag-core/internal/quorum"
	"github.com/intercoop-network/dag-core/internal/storekv"
)

func bogusCid(t *testing.T) cid.Cid {
	t.Helper()
	sum, err := mh.Sum([]byte("policy-approval"), mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash: %v", err)
	}
	return cid.NewCidV1(0x71, sum)
}

func TestCheckDefaultDeny(t *testing.T) {
	p := ScopePolicy{ScopeType: dagnode.ScopeFederation, ScopeID: "fed:a"}
	kp, _ := identity.GenerateKeyPair()
	if err := p.Check("anything", kp.Did, "fed:a", nil); err == nil {
		t.Fatalf("expected default deny with no matching rule")
	}
}

func TestCheckRequiresMembership(t *testing.T) {
	kp, _ := identity.GenerateKeyPair()
	idx := membership.New(nil)
	p := ScopePolicy{
		ScopeType: dagnode.ScopeCooperative,
		ScopeID:   "coop:x",
		AllowedActions: []Rule{
			{ActionType: "propose", RequiredMembershipFederationID: "fed:a"},
		},
	}
	if err := p.Check("propose", kp.Did, "fed:a", idx); err == nil {
		t.Fatalf("expected denial before membership admitted")
	}
	if err := idx.Admit(context.Background(), kp.Did, membership.Key{Scope: dagnode.ScopeFederation, ScopeID: "fed:a"}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := p.Check("propose", kp.Did, "fed:a", idx); err != nil {
		t.Fatalf("expected allow after membership admitted: %v", err)
	}
}

func TestCheckAllowedDidsAllowlist(t *testing.T) {
	kp1, _ := identity.GenerateKeyPair()
	kp2, _ := identity.GenerateKeyPair()
	p := ScopePolicy{
		ScopeType: dagnode.ScopeCommunity,
		ScopeID:   "com:y",
		AllowedActions: []Rule{
			{ActionType: "revoke", AllowedDids: []identity.Did{kp1.Did}},
		},
	}
	if err := p.Check("revoke", kp1.Did, "", nil); err != nil {
		t.Fatalf("expected allowed did to pass: %v", err)
	}
	if err := p.Check("revoke", kp2.Did, "", nil); err == nil {
		t.Fatalf("expected non-allowlisted did to be denied")
	}
}

func TestStoreSetAndLoad(t *testing.T) {
	kv := storekv.NewMemoryStore()
	store := NewStore(kv)
	p := ScopePolicy{ScopeType: dagnode.ScopeFederation, ScopeID: "fed:a", AllowedActions: []Rule{{ActionType: "noop"}}}
	if err := store.SetPolicy(context.Background(), p); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	loaded, err := Load(context.Background(), kv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := loaded.PolicyFor(dagnode.ScopeFederation, "fed:a", "fed:a")
	if err != nil {
		t.Fatalf("policy for: %v", err)
	}
	if len(got.AllowedActions) != 1 || got.AllowedActions[0].ActionType != "noop" {
		t.Fatalf("unexpected loaded policy: %+v", got)
	}
}

func TestStoreFallsBackToFederationDefault(t *testing.T) {
	store := NewStore(nil)
	def := ScopePolicy{ScopeType: dagnode.ScopeCooperative, AllowedActions: []Rule{{ActionType: "default_action"}}}
	store.SetFederationDefault("fed:a", def)
	got, err := store.PolicyFor(dagnode.ScopeCooperative, "coop:unspecified", "fed:a")
	if err != nil {
		t.Fatalf("expected fallback to default policy: %v", err)
	}
	if got.AllowedActions[0].ActionType != "default_action" {
		t.Fatalf("unexpected fallback policy: %+v", got)
	}
}

func TestApplyApprovalReplacesPolicyOnQuorum(t *testing.T) {
	kp1, _ := identity.GenerateKeyPair()
	kp2, _ := identity.GenerateKeyPair()
	store := NewStore(nil)
	proc := NewProcessor(store, identity.SelfResolver{})

	newPolicy := ScopePolicy{ScopeType: dagnode.ScopeFederation, ScopeID: "fed:a", AllowedActions: []Rule{{ActionType: "submit"}}}
	proposal := UpdateProposal{
		ProposalID: "prop-1",
		NewPolicy:  newPolicy,
		QuorumConfig: quorum.Config{
			Type:         quorum.TypeMajority,
			Participants: []identity.Did{kp1.Did, kp2.Did},
		},
	}
	hash, err := proposalHash(proposal)
	if err != nil {
		t.Fatalf("proposal hash: %v", err)
	}
	sig1 := kp1.Sign(hash)
	approval := UpdateApproval{
		ProposalID: "prop-1",
		Proof:      quorum.Proof{Entries: []quorum.SignaturePair{{Signer: kp1.Did, Signature: sig1}}},
	}
	if err := proc.ApplyApproval(context.Background(), proposal, approval, bogusCid(t)); err != nil {
		t.Fatalf("apply approval: %v", err)
	}
	got, err := store.PolicyFor(dagnode.ScopeFederation, "fed:a", "fed:a")
	if err != nil {
		t.Fatalf("policy for: %v", err)
	}
	if got.AllowedActions[0].ActionType != "submit" {
		t.Fatalf("policy not replaced: %+v", got)
	}
}

func TestApplyApprovalRejectsInsufficientQuorum(t *testing.T) {
	kp1, _ := identity.GenerateKeyPair()
	kp2, _ := identity.GenerateKeyPair()
	kp3, _ := identity.GenerateKeyPair()
	store := NewStore(nil)
	proc := NewProcessor(store, identity.SelfResolver{})

	proposal := UpdateProposal{
		ProposalID: "prop-2",
		NewPolicy:  ScopePolicy{ScopeType: dagnode.ScopeFederation, ScopeID: "fed:a"},
		QuorumConfig: quorum.Config{
			Type:         quorum.TypeMajority,
			Participants: []identity.Did{kp1.Did, kp2.Did, kp3.Did},
		},
	}
	hash, _ := proposalHash(proposal)
	sig1 := kp1.Sign(hash)
	approval := UpdateApproval{
		ProposalID: "prop-2",
		Proof:      quorum.Proof{Entries: []quorum.SignaturePair{{Signer: kp1.Did, Signature: sig1}}},
	}
	if err := proc.ApplyApproval(context.Background(), proposal, approval, bogusCid(t)); err == nil {
		t.Fatalf("expected quorum failure with only 1/3 signatures under majority")
	}
}

func TestIsExemptGenesisAndSystemScope(t *testing.T) {
	genesisPayload, err := dagnode.NewJSONPayload(map[string]interface{}{"type": "FederationGenesis"})
	if err != nil {
		t.Fatalf("genesis payload: %v", err)
	}
	genesis := dagnode.Node{Payload: genesisPayload, Metadata: dagnode.Metadata{Scope: dagnode.ScopeFederation}}
	if !IsExempt(genesis, nil) {
		t.Fatalf("expected genesis node to be exempt")
	}

	systemNode := dagnode.Node{
		Parents:  []string{"x"},
		Metadata: dagnode.Metadata{Scope: dagnode.ScopeFederation, ScopeID: "system"},
	}
	if !IsExempt(systemNode, nil) {
		t.Fatalf("expected system-scoped node to be exempt")
	}
}

func revocationRecordNode(scopeID string, issuer identity.Did) dagnode.Node {
	payload, _ := dagnode.NewJSONPayload(map[string]interface{}{
		"type":          "RevocationRecord",
		"federation_id": "fed:a",
		"notice":        map[string]interface{}{"issuer": issuer},
	})
	return dagnode.Node{
		Parents:  []string{"x"},
		Payload:  payload,
		Metadata: dagnode.Metadata{Scope: dagnode.ScopeFederation, ScopeID: scopeID, FederationID: "fed:a"},
	}
}

func TestIsExemptRevocationRecordRequiresScopeAdmin(t *testing.T) {
	admin, _ := identity.GenerateKeyPair()
	outsider, _ := identity.GenerateKeyPair()

	store := NewStore(nil)
	if err := store.SetPolicy(context.Background(), ScopePolicy{
		ScopeType: dagnode.ScopeFederation, ScopeID: "fed:a", Admins: []identity.Did{admin.Did},
	}); err != nil {
		t.Fatalf("set policy: %v", err)
	}

	if !IsExempt(revocationRecordNode("fed:a", admin.Did), store) {
		t.Fatalf("expected revocation record issued by a scope admin to be exempt")
	}
	if IsExempt(revocationRecordNode("fed:a", outsider.Did), store) {
		t.Fatalf("expected revocation record issued by a non-admin to NOT be exempt")
	}
	if IsExempt(revocationRecordNode("fed:a", admin.Did), nil) {
		t.Fatalf("expected revocation record to never be exempt without a policy store to check admins against")
	}
}
