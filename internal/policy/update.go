package policy

import (
	"context"
	"encoding/json"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/quorum"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// UpdateProposal is the JSON-payload shape of a PolicyUpdateProposal node: a
// full replacement ScopePolicy for one (scope_type, scope_id), plus the
// quorum configuration votes must satisfy before the replacement takes
// effect.
type UpdateProposal struct {
	ProposalID   string        `json:"proposal_id"`
	NewPolicy    ScopePolicy   `json:"new_policy"`
	QuorumConfig quorum.Config `json:"quorum_config"`
}

// UpdateVote is the JSON-payload shape of a PolicyUpdateVote node: a single
// signer's yes/no response to a proposal, referencing it as a parent.
type UpdateVote struct {
	ProposalID string          `json:"proposal_id"`
	Voter      identity.Did    `json:"voter"`
	Decision   quorum.Decision `json:"decision"`
}

// UpdateApproval is the JSON-payload shape of a PolicyUpdateApproval node:
// the terminal node of the three-node pipeline, carrying a quorum proof
// whose signatures are over the proposal's signable bytes (see
// proposalHash), not over vote nodes.
type UpdateApproval struct {
	ProposalID string       `json:"proposal_id"`
	Proof      quorum.Proof `json:"proof"`
}

// Processor applies the terminal PolicyUpdateApproval of the
// PolicyUpdateProposal -> PolicyUpdateVote* -> PolicyUpdateApproval
// pipeline against a Store (PolicyUpdateVote nodes are not tallied here),
// applying accepted
// replacements "strict-after": the new ScopePolicy governs only nodes
// appended after the approval node is itself committed, never retroactively
// re-judging nodes already accepted under the prior policy.
type Processor struct {
	store    *Store
	resolver identity.PublicKeyResolver
}

func NewProcessor(store *Store, resolver identity.PublicKeyResolver) *Processor {
	if resolver == nil {
		resolver = identity.SelfResolver{}
	}
	return &Processor{store: store, resolver: resolver}
}

// ApplyApproval validates that approval's quorum proof satisfies proposal's
// quorum_config over the canonical signable encoding of proposal (see
// proposalHash), then installs
// proposal.NewPolicy as the current policy for its scope. approvalCID is the
// Cid of the PolicyUpdateApproval node itself, recorded purely so callers
// can audit which DAG node effected the change; it is not otherwise
// consulted.
func (p *Processor) ApplyApproval(ctx context.Context, proposal UpdateProposal, approval UpdateApproval, approvalCID cid.Cid) error {
	if approval.ProposalID != proposal.ProposalID {
		return utils.New(utils.KindStructural, "approval references a different proposal_id")
	}
	hash, err := proposalHash(proposal)
	if err != nil {
		return err
	}
	if err := quorum.Verify(proposal.QuorumConfig, hash, approval.Proof, p.resolver, true); err != nil {
		return utils.Wrap(utils.KindQuorum, err, "policy update approval failed quorum check")
	}
	return p.store.SetPolicy(ctx, proposal.NewPolicy)
}

// proposalHash is the bytes signers vote over: the canonical encoding of the
// proposal's new_policy and proposal_id, excluding the quorum_config and
// approval machinery (so voters attest to the policy content itself).
func proposalHash(p UpdateProposal) ([]byte, error) {
	type signable struct {
		ProposalID string      `cbor:"proposal_id"`
		NewPolicy  ScopePolicy `cbor:"new_policy"`
	}
	return canon.Encode(signable{ProposalID: p.ProposalID, NewPolicy: p.NewPolicy})
}

// IsExempt reports whether a node is exempt from the scope's AllowedActions
// check entirely: genesis nodes, nodes scoped to the reserved "system"
// scope_id, and revocation records issued by one of the governing scope's
// Admins. policies may be nil, in which case a revocation record is never
// exempt (it falls through to the general AllowedActions check, which will
// deny it absent an explicit rule) rather than being waved through.
func IsExempt(n dagnode.Node, policies *Store) bool {
	action, ok := n.Payload.ActionType()
	if len(n.Parents) == 0 && ok {
		switch action {
		case "federationgenesis", "cooperativegenesis", "communitygenesis":
			return true
		}
	}
	if n.Metadata.ScopeID == "system" {
		return true
	}
	if ok && action == "revocationrecord" {
		return isRevocationByScopeAdmin(n, policies)
	}
	return false
}

// isRevocationByScopeAdmin reports whether a RevocationRecord node's
// embedded notice was issued by a Did in the governing scope's Admins list.
// A revocation record is authorized by admin membership alone; it never
// reaches the general AllowedActions check.
func isRevocationByScopeAdmin(n dagnode.Node, policies *Store) bool {
	if policies == nil || n.Payload.JSON == nil {
		return false
	}
	var rec struct {
		Notice struct {
			Issuer identity.Did `json:"issuer"`
		} `json:"notice"`
	}
	if err := json.Unmarshal(n.Payload.JSON, &rec); err != nil {
		return false
	}
	pol, err := policies.PolicyFor(n.Metadata.Scope, n.Metadata.ScopeID, n.Metadata.FederationID)
	if err != nil {
		return false
	}
	return containsDid(pol.Admins, rec.Notice.Issuer)
}
