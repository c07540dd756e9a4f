package join

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/membership"
	"github.com/intercoop-network/dag-core/internal/quorum"
	"github.com/intercoop-network/dag-core/internal/storekv"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// DefaultVotingWindow is the duration after a join request's timestamp
// during which FederationJoinVote nodes are counted; votes cast after the
// window are silently dropped.
const DefaultVotingWindow = 7 * 24 * time.Hour

// voteRecord is a counted vote retained for tally/attestation purposes.
type voteRecord struct {
	Decision Decision `cbor:"decision"`
	VotedAt  int64    `cbor:"voted_at"`
	CID      string   `cbor:"cid"`
}

// record is the persisted state of one (federation_id, joining_scope_id)
// admission process.
type record struct {
	FederationID    string                       `cbor:"federation_id"`
	ScopeID         string                       `cbor:"scope_id"`
	ScopeType       dagnode.Scope                `cbor:"scope_type"`
	State           State                        `cbor:"state"`
	RequestCID      string                       `cbor:"request_cid"`
	Requester       identity.Did                 `cbor:"requester"`
	RequestedAt     int64                        `cbor:"requested_at"`
	EligibleVoters  []identity.Did               `cbor:"eligible_voters"`
	Threshold       int                          `cbor:"threshold"`
	Votes           map[identity.Did]voteRecord  `cbor:"votes"`
	AttestationCID  string                       `cbor:"attestation_cid"`
	LineageCID      string                       `cbor:"lineage_cid"`
	ApprovalCID     string                       `cbor:"approval_cid"`
}

// DAGReader is the subset of dagstore.Store the join Manager needs to
// validate transitions against the store (kept narrow to avoid an import
// cycle with internal/dagstore's higher-level Store, which is satisfied by
// *dagstore.DAGStore).
type DAGReader interface {
	Contains(ctx context.Context, c cid.Cid) (bool, error)
	GetNode(ctx context.Context, c cid.Cid) (*dagnode.SignedNode, error)
}

// Manager drives the admission state machine, persisting its
// per-(federation, scope) state in storekv and updating the shared
// Membership Index on Admitted transitions. The Manager itself does not
// lock; callers serialize calls per federation (pipeline.Orchestrator
// invokes it after AddNode returns, outside the DAG Store's write lock).
type Manager struct {
	store        DAGReader
	membership   *membership.Index
	kv           storekv.Store
	resolver     identity.PublicKeyResolver
	votingWindow time.Duration
}

// NewManager wires a Manager. A nil resolver defaults to
// identity.SelfResolver.
func NewManager(store DAGReader, idx *membership.Index, kv storekv.Store, resolver identity.PublicKeyResolver) *Manager {
	if resolver == nil {
		resolver = identity.SelfResolver{}
	}
	return &Manager{store: store, membership: idx, kv: kv, resolver: resolver, votingWindow: DefaultVotingWindow}
}

func recordKey(federationID, scopeID string) []byte {
	return []byte(federationID + "|" + scopeID)
}

func (m *Manager) load(ctx context.Context, federationID, scopeID string) (*record, error) {
	raw, found, err := m.kv.Get(ctx, storekv.TableJoinState, recordKey(federationID, scopeID))
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "load join state")
	}
	if !found {
		return &record{FederationID: federationID, ScopeID: scopeID, State: StateNone, Votes: map[identity.Did]voteRecord{}}, nil
	}
	var r record
	if err := canon.Decode(raw, &r); err != nil {
		return nil, err
	}
	if r.Votes == nil {
		r.Votes = map[identity.Did]voteRecord{}
	}
	return &r, nil
}

func (m *Manager) save(ctx context.Context, r *record) error {
	raw, err := canon.Encode(r)
	if err != nil {
		return err
	}
	if err := m.kv.Put(ctx, storekv.TableJoinState, recordKey(r.FederationID, r.ScopeID), raw); err != nil {
		return utils.Wrap(utils.KindStorage, err, "persist join state")
	}
	return nil
}

// State returns the current admission state for (federationID, scopeID).
func (m *Manager) State(ctx context.Context, federationID, scopeID string) (State, error) {
	r, err := m.load(ctx, federationID, scopeID)
	if err != nil {
		return "", err
	}
	return r.State, nil
}

// unmarshalJSONPayload decodes a node's Json payload bytes into v.
func unmarshalJSONPayload(n *dagnode.SignedNode, v interface{}) error {
	if n.Inner.Payload.Kind != dagnode.KindJSON {
		return utils.New(utils.KindStructural, "expected json payload")
	}
	if err := json.Unmarshal(n.Inner.Payload.JSON, v); err != nil {
		return utils.Wrap(utils.KindStructural, err, "unmarshal join node payload")
	}
	return nil
}

// HandleRequest processes a CommunityJoinRequest / CooperativeJoinRequest
// node: the None -> Requested transition. quorumThreshold is the absolute
// count of yes votes the federation's genesis requires
// (FederationGenesis.quorumThreshold, read as an integer count). eligibleVoters
// is the federation's membership snapshot, resolved by the caller at the
// request's timestamp (in this core's single-writer, strictly-ordered
// pipeline, the current Membership Index at processing time already *is*
// the membership as of the request's timestamp, since nothing can commit
// out of order).
func (m *Manager) HandleRequest(ctx context.Context, signed *dagnode.SignedNode, quorumThreshold int, eligibleVoters []identity.Did) error {
	var req Request
	if err := unmarshalJSONPayload(signed, &req); err != nil {
		return err
	}
	c, err := signed.CID()
	if err != nil {
		return err
	}

	fedGenesis, err := canon.ParseCID(req.FederationGenesisCID)
	if err != nil {
		return err
	}
	scopeGenesis, err := canon.ParseCID(req.ScopeGenesisCID)
	if err != nil {
		return err
	}
	if ok, err := m.store.Contains(ctx, fedGenesis); err != nil {
		return err
	} else if !ok {
		return utils.New(utils.KindStructural, "federation genesis cid not present: "+req.FederationGenesisCID)
	}
	if ok, err := m.store.Contains(ctx, scopeGenesis); err != nil {
		return err
	} else if !ok {
		return utils.New(utils.KindStructural, "scope genesis cid not present: "+req.ScopeGenesisCID)
	}

	r, err := m.load(ctx, req.FederationID, req.ScopeID)
	if err != nil {
		return err
	}
	if r.State != StateNone && r.State != StateRejected {
		return utils.New(utils.KindStructural, "join request already in progress for "+req.ScopeID)
	}

	r.ScopeType = req.ScopeType
	r.State = StateRequested
	r.RequestCID = c.String()
	r.Requester = req.Requester
	r.RequestedAt = req.RequestedAt
	r.EligibleVoters = eligibleVoters
	r.Threshold = quorumThreshold
	r.Votes = map[identity.Did]voteRecord{}
	r.AttestationCID, r.LineageCID, r.ApprovalCID = "", "", ""
	return m.save(ctx, r)
}

func isEligible(voters []identity.Did, d identity.Did) bool {
	for _, v := range voters {
		if v == d {
			return true
		}
	}
	return false
}

// HandleVote processes a FederationJoinVote node: Requested/Voting ->
// Voting. Votes outside the voting window, from ineligible voters, or
// referencing an unknown/already-terminal request are silently dropped
// (not an error — the node itself was already accepted into the DAG by the
// store; only its effect on the tally is at stake here).
func (m *Manager) HandleVote(ctx context.Context, signed *dagnode.SignedNode) error {
	var vote Vote
	if err := unmarshalJSONPayload(signed, &vote); err != nil {
		return err
	}
	c, err := signed.CID()
	if err != nil {
		return err
	}

	// A FederationJoinVote doesn't carry (federation_id, scope_id)
	// directly; resolve them via the referenced request node.
	reqCID, err := canon.ParseCID(vote.RequestCID)
	if err != nil {
		return err
	}
	reqNode, err := m.store.GetNode(ctx, reqCID)
	if err != nil {
		return err
	}
	var req Request
	if err := unmarshalJSONPayload(reqNode, &req); err != nil {
		return err
	}

	r, err := m.load(ctx, req.FederationID, req.ScopeID)
	if err != nil {
		return err
	}
	if r.State != StateRequested && r.State != StateVoting {
		return nil // terminal or mismatched state: drop silently
	}
	if r.RequestCID != vote.RequestCID {
		return nil
	}
	if !isEligible(r.EligibleVoters, vote.Voter) {
		return nil
	}
	windowEnd := time.Unix(r.RequestedAt, 0).Add(m.votingWindow).Unix()
	if vote.VotedAt > windowEnd {
		return nil
	}

	existing, had := r.Votes[vote.Voter]
	if had && existing.VotedAt >= vote.VotedAt {
		return nil // an equal-or-later vote is already recorded; amendment only moves forward
	}
	r.Votes[vote.Voter] = voteRecord{Decision: vote.Decision, VotedAt: vote.VotedAt, CID: c.String()}
	r.State = StateVoting

	if impossible := m.isImpossible(r); impossible {
		r.State = StateRejected
	}
	return m.save(ctx, r)
}

func (m *Manager) tally(r *record) (yes, no int, yesVoters, noVoters []identity.Did) {
	for voter, v := range r.Votes {
		switch v.Decision {
		case DecisionYes:
			yes++
			yesVoters = append(yesVoters, voter)
		case DecisionNo:
			no++
			noVoters = append(noVoters, voter)
		}
	}
	return
}

func (m *Manager) isImpossible(r *record) bool {
	yes, _, _, _ := m.tally(r)
	votedCount := len(r.Votes)
	remaining := len(r.EligibleVoters) - votedCount
	if remaining < 0 {
		remaining = 0
	}
	return quorum.EarlyRejectImpossible(uint64(yes), uint64(remaining), uint64(r.Threshold))
}

// ReadyForAttestation reports whether the accumulated tally already meets
// the federation's threshold, and returns the QuorumProof a coordinator can
// embed in a FederationMembershipAttestation.
func (m *Manager) ReadyForAttestation(ctx context.Context, federationID, scopeID string) (QuorumProof, bool, error) {
	r, err := m.load(ctx, federationID, scopeID)
	if err != nil {
		return QuorumProof{}, false, err
	}
	if r.State != StateVoting && r.State != StateRequested {
		return QuorumProof{}, false, nil
	}
	yes, no, yesVoters, noVoters := m.tally(r)
	proof := QuorumProof{
		TotalMembers:   len(r.EligibleVoters),
		Threshold:      r.Threshold,
		VotesReceived:  len(r.Votes),
		YesVotes:       yes,
		NoVotes:        no,
		EligibleVoters: append([]identity.Did{}, r.EligibleVoters...),
		YesVoters:      yesVoters,
		NoVoters:       noVoters,
	}
	return proof, proof.IsQuorumReached(), nil
}

// HandleAttestation processes a FederationMembershipAttestation node:
// Voting (or Requested) -> Attested.
func (m *Manager) HandleAttestation(ctx context.Context, signed *dagnode.SignedNode) error {
	var att MembershipAttestation
	if err := unmarshalJSONPayload(signed, &att); err != nil {
		return err
	}
	c, err := signed.CID()
	if err != nil {
		return err
	}

	r, err := m.load(ctx, att.FederationID, att.ScopeID)
	if err != nil {
		return err
	}
	if r.State != StateVoting && r.State != StateRequested {
		return utils.New(utils.KindStructural, "attestation received outside voting state")
	}
	if r.RequestCID != att.RequestCID {
		return utils.New(utils.KindStructural, "attestation references wrong request cid")
	}
	if err := att.Proof.Validate(); err != nil {
		return err
	}
	if !att.IsComplete() {
		return utils.New(utils.KindSignature, "membership attestation missing a required signature")
	}

	r.State = StateAttested
	r.AttestationCID = c.String()
	return m.save(ctx, r)
}

// HandleLineage processes a LineageAttestation node: Attested -> Linked.
func (m *Manager) HandleLineage(ctx context.Context, signed *dagnode.SignedNode, federationID, scopeID string) error {
	var lin LineageAttestation
	if err := unmarshalJSONPayload(signed, &lin); err != nil {
		return err
	}
	c, err := signed.CID()
	if err != nil {
		return err
	}

	r, err := m.load(ctx, federationID, scopeID)
	if err != nil {
		return err
	}
	if r.State != StateAttested {
		return utils.New(utils.KindStructural, "lineage attestation received outside attested state")
	}
	if r.AttestationCID != lin.MembershipAttestationCID {
		return utils.New(utils.KindStructural, "lineage attestation references wrong membership attestation cid")
	}
	if !lin.IsComplete() {
		return utils.New(utils.KindSignature, "lineage attestation missing a required signature")
	}

	r.State = StateLinked
	r.LineageCID = c.String()
	return m.save(ctx, r)
}

// HandleApproval processes a FederationJoinApproval node: Linked ->
// Admitted, and admits the joining scope's requester into the federation's
// Membership Index.
func (m *Manager) HandleApproval(ctx context.Context, signed *dagnode.SignedNode) error {
	var approval Approval
	if err := unmarshalJSONPayload(signed, &approval); err != nil {
		return err
	}
	c, err := signed.CID()
	if err != nil {
		return err
	}

	r, err := m.load(ctx, approval.FederationID, approval.ScopeID)
	if err != nil {
		return err
	}
	if r.State != StateLinked {
		return utils.New(utils.KindStructural, "approval received outside linked state")
	}
	if r.RequestCID != approval.RequestCID || r.AttestationCID != approval.AttestationCID || r.LineageCID != approval.LineageCID {
		return utils.New(utils.KindStructural, "approval references inconsistent request/attestation/lineage cids")
	}

	r.State = StateAdmitted
	r.ApprovalCID = c.String()
	if err := m.save(ctx, r); err != nil {
		return err
	}
	if m.membership != nil {
		return m.membership.Admit(ctx, r.Requester, membership.Key{Scope: dagnode.ScopeFederation, ScopeID: approval.FederationID})
	}
	return nil
}

// Reject forces the any-state -> Rejected transition. A rejected request
// can be resubmitted as a fresh request with a new Cid — HandleRequest
// permits submission again once State == Rejected.
func (m *Manager) Reject(ctx context.Context, federationID, scopeID string) error {
	r, err := m.load(ctx, federationID, scopeID)
	if err != nil {
		return err
	}
	if r.State.Terminal() {
		return nil
	}
	r.State = StateRejected
	return m.save(ctx, r)
}
