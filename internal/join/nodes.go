package join

import (
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/quorum"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Decision is a join vote's choice. Unlike the governance vote engine's
// Decision (internal/quorum.Decision, which adds Abstain/Veto), a
// FederationJoinVote is strictly binary.
type Decision string

const (
	DecisionYes Decision = "yes"
	DecisionNo  Decision = "no"
)

// Request is the JSON-payload shape of a CommunityJoinRequest /
// CooperativeJoinRequest node.
type Request struct {
	ScopeType            dagnode.Scope `json:"scope_type"`
	ScopeID              string        `json:"scope_id"`
	FederationID         string        `json:"federation_id"`
	ScopeGenesisCID      string        `json:"scope_genesis_cid"`
	FederationGenesisCID string        `json:"federation_genesis_cid"`
	RequestedAt          int64         `json:"requested_at"`
	Requester            identity.Did  `json:"requester"`
}

// Vote is the JSON-payload shape of a FederationJoinVote node.
type Vote struct {
	RequestCID string       `json:"request_cid"`
	Decision   Decision     `json:"vote"`
	Reason     string       `json:"reason,omitempty"`
	VotedAt    int64        `json:"voted_at"`
	Voter      identity.Did `json:"voter"`
}

// QuorumProof is the embedded vote tally carried by a
// FederationMembershipAttestation.
type QuorumProof struct {
	TotalMembers    int            `json:"total_members"`
	Threshold       int            `json:"threshold"`
	VotesReceived   int            `json:"votes_received"`
	YesVotes        int            `json:"yes_votes"`
	NoVotes         int            `json:"no_votes"`
	EligibleVoters  []identity.Did `json:"eligible_voters"`
	YesVoters       []identity.Did `json:"yes_voters"`
	NoVoters        []identity.Did `json:"no_voters"`
	Timestamp       int64          `json:"timestamp"`
}

// IsQuorumReached reports whether the tally satisfies the threshold and the
// yes/no majority invariant.
func (p QuorumProof) IsQuorumReached() bool {
	return p.YesVotes >= p.Threshold && p.YesVotes > p.NoVotes
}

// Validate checks the internal-consistency invariants for an accepted
// MembershipAttestation's embedded QuorumProof.
func (p QuorumProof) Validate() error {
	if err := disjoint(p.YesVoters, p.NoVoters); err != nil {
		return err
	}
	if len(p.YesVoters) != p.YesVotes {
		return errStructural("yes_voters count disagrees with yes_votes")
	}
	if len(p.NoVoters) != p.NoVotes {
		return errStructural("no_voters count disagrees with no_votes")
	}
	if p.VotesReceived != p.YesVotes+p.NoVotes {
		return errStructural("votes_received disagrees with yes_votes+no_votes")
	}
	if p.Threshold > p.TotalMembers {
		return errStructural("threshold exceeds total_members")
	}
	if !p.IsQuorumReached() {
		return errQuorum("quorum not reached: yes_votes below threshold or not a majority over no_votes")
	}
	return nil
}

// MembershipAttestation is the JSON-payload shape of a
// FederationMembershipAttestation node.
type MembershipAttestation struct {
	ScopeType           dagnode.Scope         `json:"scope_type"`
	ScopeID             string                `json:"scope_id"`
	FederationID        string                `json:"federation_id"`
	RequestCID          string                `json:"request_cid"`
	VoteCIDs            []string              `json:"vote_cids"`
	Proof               QuorumProof           `json:"quorum_proof"`
	FederationSignature []byte                `json:"federation_signature,omitempty"`
	ScopeSignature       []byte               `json:"scope_signature,omitempty"`
}

// IsComplete reports whether both required signatures are present.
func (a MembershipAttestation) IsComplete() bool {
	return len(a.FederationSignature) > 0 && len(a.ScopeSignature) > 0
}

// LineageAttestation is the JSON-payload shape of a LineageAttestation
// node: the cross-DAG edge linking a federation and a scope.
type LineageAttestation struct {
	ParentScope              dagnode.Scope            `json:"parent_scope"`
	ParentCID                string                   `json:"parent_cid"`
	ChildScope               dagnode.Scope            `json:"child_scope"`
	ChildCID                 string                   `json:"child_cid"`
	MembershipAttestationCID string                   `json:"membership_attestation_cid"`
	Signatures               []quorum.SignaturePair   `json:"signatures"`
}

// IsComplete reports whether LineageAttestation carries one signature from
// each scope.
func (l LineageAttestation) IsComplete() bool {
	return len(l.Signatures) >= 2
}

// Approval is the JSON-payload shape of a FederationJoinApproval node —
// the terminal, system-visible event of the admission pipeline.
type Approval struct {
	ScopeType      dagnode.Scope `json:"scope_type"`
	ScopeID        string        `json:"scope_id"`
	FederationID   string        `json:"federation_id"`
	RequestCID     string        `json:"request_cid"`
	AttestationCID string        `json:"attestation_cid"`
	LineageCID     string        `json:"lineage_cid"`
	ApprovedAt     int64         `json:"approved_at"`
	Approver       identity.Did  `json:"approver"`
}

func disjoint(a, b []identity.Did) error {
	set := make(map[identity.Did]struct{}, len(a))
	for _, d := range a {
		set[d] = struct{}{}
	}
	for _, d := range b {
		if _, ok := set[d]; ok {
			return errStructural("voter present in both yes_voters and no_voters: " + string(d))
		}
	}
	return nil
}
