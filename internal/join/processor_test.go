package join

import (
	"context"
	"testing"

	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/dagstore"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/membership"
	"github.com/intercoop-network/dag-core/internal/storekv"
)

// harness bundles a DAGStore and join.Manager sharing one federation's
// genesis events, used across the happy-path and rejection scenarios.
type harness struct {
	t       *testing.T
	ctx     context.Context
	store   *dagstore.DAGStore
	idx     *membership.Index
	mgr     *Manager
	fedKP   *identity.KeyPair
	scopeKP *identity.KeyPair
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv := storekv.NewMemoryStore()
	store := dagstore.New(kv, nil, nil)
	idx := membership.New(nil)
	mgr := NewManager(store, idx, kv, identity.SelfResolver{})
	fedKP, _ := identity.GenerateKeyPair()
	scopeKP, _ := identity.GenerateKeyPair()
	return &harness{t: t, ctx: context.Background(), store: store, idx: idx, mgr: mgr, fedKP: fedKP, scopeKP: scopeKP}
}

func (h *harness) genesis(kind string, federationID string) *dagnode.SignedNode {
	h.t.Helper()
	payload, err := dagnode.NewJSONPayload(map[string]interface{}{"type": kind})
	if err != nil {
		h.t.Fatalf("genesis payload: %v", err)
	}
	n := dagnode.NewNode(payload, nil, h.fedKP.Did, dagnode.Metadata{Timestamp: 1, Scope: dagnode.ScopeFederation, FederationID: federationID})
	sn, err := dagnode.Sign(n, h.fedKP)
	if err != nil {
		h.t.Fatalf("sign genesis: %v", err)
	}
	if _, err := h.store.AddNode(h.ctx, sn); err != nil {
		h.t.Fatalf("add genesis: %v", err)
	}
	return sn
}

func (h *harness) signJSON(author *identity.KeyPair, fields map[string]interface{}, ts int64, scope dagnode.Scope, scopeID, federationID string, parents []string) *dagnode.SignedNode {
	h.t.Helper()
	payload, err := dagnode.NewJSONPayload(fields)
	if err != nil {
		h.t.Fatalf("payload: %v", err)
	}
	n := dagnode.Node{
		Payload:  payload,
		Parents:  parents,
		Author:   string(author.Did),
		Metadata: dagnode.Metadata{Timestamp: ts, Scope: scope, ScopeID: scopeID, FederationID: federationID},
	}
	sn, err := dagnode.Sign(n, author)
	if err != nil {
		h.t.Fatalf("sign: %v", err)
	}
	if _, err := h.store.AddNode(h.ctx, sn); err != nil {
		h.t.Fatalf("add node: %v", err)
	}
	return sn
}

func TestJoinProtocolHappyPath(t *testing.T) {
	h := newHarness(t)
	federationID := "fed:alpha"
	scopeID := "com:beta"

	fedGenesis := h.genesis("FederationGenesis", federationID)
	scopeGenesis := h.genesis("CommunityGenesis", federationID)
	fedGenesisCID, _ := fedGenesis.CID()
	scopeGenesisCID, _ := scopeGenesis.CID()

	members := make([]*identity.KeyPair, 5)
	memberDids := make([]identity.Did, 5)
	for i := range members {
		kp, _ := identity.GenerateKeyPair()
		members[i] = kp
		memberDids[i] = kp.Did
	}

	reqNode := h.signJSON(h.scopeKP, map[string]interface{}{
		"type":                   "CommunityJoinRequest",
		"scope_type":             string(dagnode.ScopeCommunity),
		"scope_id":               scopeID,
		"federation_id":          federationID,
		"scope_genesis_cid":      scopeGenesisCID.String(),
		"federation_genesis_cid": fedGenesisCID.String(),
		"requested_at":           int64(100),
		"requester":              string(h.scopeKP.Did),
	}, 100, dagnode.ScopeCommunity, scopeID, federationID, []string{fedGenesisCID.String(), scopeGenesisCID.String()})

	reqCID, _ := reqNode.CID()
	req := Request{
		ScopeType: dagnode.ScopeCommunity, ScopeID: scopeID, FederationID: federationID,
		ScopeGenesisCID: scopeGenesisCID.String(), FederationGenesisCID: fedGenesisCID.String(),
		RequestedAt: 100, Requester: h.scopeKP.Did,
	}
	if err := h.mgr.HandleRequest(h.ctx, reqNode, 3, memberDids); err != nil {
		t.Fatalf("handle request: %v", err)
	}
	state, err := h.mgr.State(h.ctx, federationID, scopeID)
	if err != nil || state != StateRequested {
		t.Fatalf("expected Requested state, got %v err %v", state, err)
	}
	_ = req

	// Members 0-2 vote yes, 3-4 vote no.
	for i, kp := range members {
		decision := DecisionYes
		if i >= 3 {
			decision = DecisionNo
		}
		voteNode := h.signJSON(kp, map[string]interface{}{
			"type":        "FederationJoinVote",
			"vote":        string(decision),
			"voted_at":    int64(150),
			"voter":       string(kp.Did),
			"request_cid": reqCID.String(),
		}, 150, dagnode.ScopeFederation, "", federationID, []string{reqCID.String()})
		if err := h.mgr.HandleVote(h.ctx, voteNode); err != nil {
			t.Fatalf("handle vote %d: %v", i, err)
		}
	}

	state, err = h.mgr.State(h.ctx, federationID, scopeID)
	if err != nil || state != StateVoting {
		t.Fatalf("expected Voting state, got %v err %v", state, err)
	}

	proof, ready, err := h.mgr.ReadyForAttestation(h.ctx, federationID, scopeID)
	if err != nil {
		t.Fatalf("ready for attestation: %v", err)
	}
	if !ready {
		t.Fatalf("expected quorum reached: %+v", proof)
	}
	if proof.VotesReceived != 5 || proof.YesVotes != 3 || proof.NoVotes != 2 {
		t.Fatalf("unexpected tally: %+v", proof)
	}

	attNode := h.signJSON(h.fedKP, map[string]interface{}{
		"type":          "FederationMembershipAttestation",
		"scope_type":    string(dagnode.ScopeCommunity),
		"scope_id":      scopeID,
		"federation_id": federationID,
		"request_cid":   reqCID.String(),
		"quorum_proof": map[string]interface{}{
			"total_members":  proof.TotalMembers,
			"threshold":       proof.Threshold,
			"votes_received":  proof.VotesReceived,
			"yes_votes":       proof.YesVotes,
			"no_votes":        proof.NoVotes,
			"eligible_voters": didsToStrings(proof.EligibleVoters),
			"yes_voters":      didsToStrings(proof.YesVoters),
			"no_voters":       didsToStrings(proof.NoVoters),
		},
		"federation_signature": []byte{1},
		"scope_signature":      []byte{2},
	}, 200, dagnode.ScopeFederation, "", federationID, []string{reqCID.String()})
	if err := h.mgr.HandleAttestation(h.ctx, attNode); err != nil {
		t.Fatalf("handle attestation: %v", err)
	}
	attCID, _ := attNode.CID()

	state, err = h.mgr.State(h.ctx, federationID, scopeID)
	if err != nil || state != StateAttested {
		t.Fatalf("expected Attested state, got %v err %v", state, err)
	}

	linNode := h.signJSON(h.fedKP, map[string]interface{}{
		"type":                        "LineageAttestation",
		"parent_scope":                string(dagnode.ScopeFederation),
		"parent_cid":                  fedGenesisCID.String(),
		"child_scope":                 string(dagnode.ScopeCommunity),
		"child_cid":                   scopeGenesisCID.String(),
		"membership_attestation_cid":  attCID.String(),
		"signatures": []map[string]interface{}{
			{"signer": string(h.fedKP.Did), "signature": []byte{1}},
			{"signer": string(h.scopeKP.Did), "signature": []byte{2}},
		},
	}, 250, dagnode.ScopeFederation, "", federationID, []string{attCID.String()})
	if err := h.mgr.HandleLineage(h.ctx, linNode, federationID, scopeID); err != nil {
		t.Fatalf("handle lineage: %v", err)
	}
	linCID, _ := linNode.CID()

	state, err = h.mgr.State(h.ctx, federationID, scopeID)
	if err != nil || state != StateLinked {
		t.Fatalf("expected Linked state, got %v err %v", state, err)
	}

	approvalNode := h.signJSON(h.fedKP, map[string]interface{}{
		"type":            "FederationJoinApproval",
		"scope_type":      string(dagnode.ScopeCommunity),
		"scope_id":        scopeID,
		"federation_id":   federationID,
		"request_cid":     reqCID.String(),
		"attestation_cid": attCID.String(),
		"lineage_cid":     linCID.String(),
		"approved_at":     int64(300),
		"approver":        string(h.fedKP.Did),
	}, 300, dagnode.ScopeFederation, "", federationID, []string{linCID.String()})
	if err := h.mgr.HandleApproval(h.ctx, approvalNode); err != nil {
		t.Fatalf("handle approval: %v", err)
	}

	state, err = h.mgr.State(h.ctx, federationID, scopeID)
	if err != nil || state != StateAdmitted {
		t.Fatalf("expected Admitted state, got %v err %v", state, err)
	}
	if !h.idx.IsMember(h.scopeKP.Did, membership.Key{Scope: dagnode.ScopeFederation, ScopeID: federationID}) {
		t.Fatalf("expected requester admitted into federation membership index")
	}
}

func TestJoinProtocolInsufficientQuorumStaysVoting(t *testing.T) {
	h := newHarness(t)
	federationID := "fed:alpha"
	scopeID := "com:beta"
	fedGenesis := h.genesis("FederationGenesis", federationID)
	scopeGenesis := h.genesis("CommunityGenesis", federationID)
	fedGenesisCID, _ := fedGenesis.CID()
	scopeGenesisCID, _ := scopeGenesis.CID()

	members := make([]*identity.KeyPair, 5)
	memberDids := make([]identity.Did, 5)
	for i := range members {
		kp, _ := identity.GenerateKeyPair()
		members[i] = kp
		memberDids[i] = kp.Did
	}

	reqNode := h.signJSON(h.scopeKP, map[string]interface{}{
		"type": "CommunityJoinRequest", "scope_id": scopeID, "federation_id": federationID,
		"scope_genesis_cid": scopeGenesisCID.String(), "federation_genesis_cid": fedGenesisCID.String(),
	}, 100, dagnode.ScopeCommunity, scopeID, federationID, []string{fedGenesisCID.String(), scopeGenesisCID.String()})
	reqCID, _ := reqNode.CID()

	if err := h.mgr.HandleRequest(h.ctx, reqNode, 3, memberDids); err != nil {
		t.Fatalf("handle request: %v", err)
	}

	for i := 0; i < 2; i++ {
		voteNode := h.signJSON(members[i], map[string]interface{}{
			"type": "FederationJoinVote", "vote": "yes", "voted_at": int64(150),
			"voter": string(members[i].Did), "request_cid": reqCID.String(),
		}, 150, dagnode.ScopeFederation, "", federationID, []string{reqCID.String()})
		if err := h.mgr.HandleVote(h.ctx, voteNode); err != nil {
			t.Fatalf("handle vote: %v", err)
		}
	}

	proof, ready, err := h.mgr.ReadyForAttestation(h.ctx, federationID, scopeID)
	if err != nil {
		t.Fatalf("ready for attestation: %v", err)
	}
	if ready {
		t.Fatalf("expected quorum not reached with only 2/3 yes votes: %+v", proof)
	}
	state, err := h.mgr.State(h.ctx, federationID, scopeID)
	if err != nil || state != StateVoting {
		t.Fatalf("expected state to remain Voting, got %v err %v", state, err)
	}
}

func TestJoinProtocolEarlyRejectOnImpossibleQuorum(t *testing.T) {
	h := newHarness(t)
	federationID := "fed:alpha"
	scopeID := "com:beta"
	fedGenesis := h.genesis("FederationGenesis", federationID)
	scopeGenesis := h.genesis("CommunityGenesis", federationID)
	fedGenesisCID, _ := fedGenesis.CID()
	scopeGenesisCID, _ := scopeGenesis.CID()

	members := make([]*identity.KeyPair, 5)
	memberDids := make([]identity.Did, 5)
	for i := range members {
		kp, _ := identity.GenerateKeyPair()
		members[i] = kp
		memberDids[i] = kp.Did
	}

	reqNode := h.signJSON(h.scopeKP, map[string]interface{}{
		"type": "CommunityJoinRequest", "scope_id": scopeID, "federation_id": federationID,
		"scope_genesis_cid": scopeGenesisCID.String(), "federation_genesis_cid": fedGenesisCID.String(),
	}, 100, dagnode.ScopeCommunity, scopeID, federationID, []string{fedGenesisCID.String(), scopeGenesisCID.String()})
	reqCID, _ := reqNode.CID()
	if err := h.mgr.HandleRequest(h.ctx, reqNode, 4, memberDids); err != nil {
		t.Fatalf("handle request: %v", err)
	}

	// 4 members vote no, leaving only 1 possible yes vote — threshold of 4
	// becomes unreachable.
	for i := 0; i < 4; i++ {
		voteNode := h.signJSON(members[i], map[string]interface{}{
			"type": "FederationJoinVote", "vote": "no", "voted_at": int64(150),
			"voter": string(members[i].Did), "request_cid": reqCID.String(),
		}, 150, dagnode.ScopeFederation, "", federationID, []string{reqCID.String()})
		if err := h.mgr.HandleVote(h.ctx, voteNode); err != nil {
			t.Fatalf("handle vote: %v", err)
		}
	}
	state, err := h.mgr.State(h.ctx, federationID, scopeID)
	if err != nil || state != StateRejected {
		t.Fatalf("expected early-reject to Rejected state, got %v err %v", state, err)
	}
}

func didsToStrings(dids []identity.Did) []string {
	out := make([]string, len(dids))
	for i, d := range dids {
		out[i] = string(d)
	}
	return out
}
