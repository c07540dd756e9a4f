// Package pipeline wires the DAG Store's admission of a node to the
// derived-view updates that must happen transactionally under the same
// write lock: the Scope-Lineage Policy Enforcer's pre-commit authorization
// check, and the post-commit dispatch into the Join Protocol's state
// machine, the Policy-update processor, the Revocation Registry, the
// Execution Receipt index, and the TrustBundle store. A single Submit
// entrypoint validates, commits, then fans out to caches and listeners by
// the node's action type.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/bootstrap"
	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/dagstore"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/join"
	"github.com/intercoop-network/dag-core/internal/membership"
	"github.com/intercoop-network/dag-core/internal/policy"
	"github.com/intercoop-network/dag-core/internal/receipt"
	"github.com/intercoop-network/dag-core/internal/revocation"
	"github.com/intercoop-network/dag-core/internal/trustbundle"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Aux carries the side-channel data a node's DAG payload references by Cid
// rather than embeds: the actual Receipt behind an ExecutionReceiptRef, or
// the actual Bundle behind a TrustBundleRef. Submit ignores it for node
// types that embed their data directly.
type Aux struct {
	Receipt *receipt.Receipt
	Bundle  *trustbundle.Bundle
}

// Orchestrator is the single entrypoint through which every DAG node
// flows: authorize, commit, dispatch.
type Orchestrator struct {
	Store       dagstore.Store
	Enforcer    *policy.Enforcer
	Policies    *policy.Processor
	Join        *join.Manager
	Membership  *membership.Index
	Revocations *revocation.Registry
	Receipts    *receipt.Index
	Bundles     *trustbundle.Store
	Resolver    identity.PublicKeyResolver

	mu        sync.Mutex
	proposals map[string]cid.Cid // proposal_id -> PolicyUpdateProposal node cid
}

// NewOrchestrator wires an Orchestrator over already-constructed
// components. Any field may be left nil in deployments that don't need the
// corresponding module (e.g. a read-only observability process); Submit
// skips dispatch for the corresponding node types in that case.
func NewOrchestrator(store dagstore.Store, enforcer *policy.Enforcer, policies *policy.Processor, joinMgr *join.Manager, idx *membership.Index, revocations *revocation.Registry, receipts *receipt.Index, bundles *trustbundle.Store, resolver identity.PublicKeyResolver) *Orchestrator {
	if resolver == nil {
		resolver = identity.SelfResolver{}
	}
	return &Orchestrator{
		Store: store, Enforcer: enforcer, Policies: policies, Join: joinMgr,
		Membership: idx, Revocations: revocations, Receipts: receipts, Bundles: bundles,
		Resolver: resolver, proposals: make(map[string]cid.Cid),
	}
}

// Submit authorizes, commits, and dispatches signed under single-writer
// ordering: callers are responsible for serializing calls per
// federation (the DAG Store itself holds the per-federation write lock
// during AddNode, but the policy/derived-view updates performed here after
// AddNode returns are not separately locked, so a caller driving two
// concurrent Submits for the same federation must still serialize them).
func (o *Orchestrator) Submit(ctx context.Context, signed *dagnode.SignedNode, at time.Time, aux Aux) (cid.Cid, error) {
	if o.Enforcer != nil {
		if err := o.Enforcer.Authorize(signed.Inner, at); err != nil {
			return cid.Undef, err
		}
	}
	c, err := o.Store.AddNode(ctx, signed)
	if err != nil {
		return cid.Undef, err
	}
	if err := o.dispatch(ctx, signed, aux); err != nil {
		return c, err
	}
	return c, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, signed *dagnode.SignedNode, aux Aux) error {
	switch signed.Inner.Payload.Kind {
	case dagnode.KindTrustBundleRef:
		return o.dispatchTrustBundleRef(ctx, aux)
	case dagnode.KindExecutionReceiptRef:
		return o.dispatchExecutionReceiptRef(ctx, aux)
	case dagnode.KindJSON:
		return o.dispatchJSON(ctx, signed)
	default:
		return nil
	}
}

func (o *Orchestrator) dispatchTrustBundleRef(ctx context.Context, aux Aux) error {
	if o.Bundles == nil || aux.Bundle == nil {
		return nil
	}
	_, err := o.Bundles.Put(ctx, *aux.Bundle, o.Resolver, trustbundle.VerificationOptions{RejectOnBadSignature: true})
	return err
}

func (o *Orchestrator) dispatchExecutionReceiptRef(ctx context.Context, aux Aux) error {
	if o.Receipts == nil || aux.Receipt == nil {
		return nil
	}
	_, err := o.Receipts.Put(ctx, *aux.Receipt, o.Resolver)
	return err
}

func (o *Orchestrator) dispatchJSON(ctx context.Context, signed *dagnode.SignedNode) error {
	action, ok := signed.Inner.Payload.ActionType()
	if !ok {
		return nil
	}
	switch action {
	case "communityjoinrequest", "cooperativejoinrequest":
		return o.handleJoinRequest(ctx, signed)
	case "federationjoinvote":
		if o.Join == nil {
			return nil
		}
		return o.Join.HandleVote(ctx, signed)
	case "federationmembershipattestation":
		if o.Join == nil {
			return nil
		}
		return o.Join.HandleAttestation(ctx, signed)
	case "lineageattestation":
		if o.Join == nil {
			return nil
		}
		return o.Join.HandleLineage(ctx, signed, signed.Inner.Metadata.FederationID, signed.Inner.Metadata.ScopeID)
	case "federationjoinapproval":
		if o.Join == nil {
			return nil
		}
		return o.Join.HandleApproval(ctx, signed)
	case "policyupdateproposal":
		return o.handlePolicyProposal(signed)
	case "policyupdateapproval":
		return o.handlePolicyApproval(ctx, signed)
	case "revocationrecord":
		return o.handleRevocationRecord(ctx, signed)
	default:
		return nil
	}
}

// handleJoinRequest resolves the federation's founding members and
// quorumThreshold from its genesis node — FederationGenesis is the sole
// source of federation voter eligibility; scopes admitted into the
// federation later are not added to the voter set — and feeds them to the
// Join Manager.
func (o *Orchestrator) handleJoinRequest(ctx context.Context, signed *dagnode.SignedNode) error {
	if o.Join == nil {
		return nil
	}
	var req join.Request
	if err := json.Unmarshal(signed.Inner.Payload.JSON, &req); err != nil {
		return utils.Wrap(utils.KindStructural, err, "unmarshal join request")
	}
	genesisCID, err := canon.ParseCID(req.FederationGenesisCID)
	if err != nil {
		return err
	}
	genesisNode, err := o.Store.GetNode(ctx, genesisCID)
	if err != nil {
		return err
	}
	var genesis bootstrap.FederationGenesis
	if err := json.Unmarshal(genesisNode.Inner.Payload.JSON, &genesis); err != nil {
		return utils.Wrap(utils.KindStructural, err, "unmarshal federation genesis")
	}
	return o.Join.HandleRequest(ctx, signed, genesis.QuorumThreshold, genesis.Members)
}

func (o *Orchestrator) handlePolicyProposal(signed *dagnode.SignedNode) error {
	var proposal policy.UpdateProposal
	if err := json.Unmarshal(signed.Inner.Payload.JSON, &proposal); err != nil {
		return utils.Wrap(utils.KindStructural, err, "unmarshal policy update proposal")
	}
	c, err := signed.CID()
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.proposals[proposal.ProposalID] = c
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) handlePolicyApproval(ctx context.Context, signed *dagnode.SignedNode) error {
	if o.Policies == nil {
		return nil
	}
	var approval policy.UpdateApproval
	if err := json.Unmarshal(signed.Inner.Payload.JSON, &approval); err != nil {
		return utils.Wrap(utils.KindStructural, err, "unmarshal policy update approval")
	}
	o.mu.Lock()
	proposalCID, ok := o.proposals[approval.ProposalID]
	o.mu.Unlock()
	if !ok {
		for _, p := range signed.Inner.Parents {
			pc, err := canon.ParseCID(p)
			if err != nil {
				return err
			}
			n, err := o.Store.GetNode(ctx, pc)
			if err != nil {
				return err
			}
			var cand policy.UpdateProposal
			if tag, _ := n.Inner.Payload.ActionType(); tag == "policyupdateproposal" && json.Unmarshal(n.Inner.Payload.JSON, &cand) == nil && cand.ProposalID == approval.ProposalID {
				proposalCID, ok = pc, true
				break
			}
		}
	}
	if !ok {
		return utils.New(utils.KindStructural, "approval references unknown proposal_id "+approval.ProposalID)
	}
	proposalNode, err := o.Store.GetNode(ctx, proposalCID)
	if err != nil {
		return err
	}
	var proposal policy.UpdateProposal
	if err := json.Unmarshal(proposalNode.Inner.Payload.JSON, &proposal); err != nil {
		return utils.Wrap(utils.KindStructural, err, "unmarshal referenced policy update proposal")
	}
	c, err := signed.CID()
	if err != nil {
		return err
	}
	return o.Policies.ApplyApproval(ctx, proposal, approval, c)
}

func (o *Orchestrator) handleRevocationRecord(ctx context.Context, signed *dagnode.SignedNode) error {
	if o.Revocations == nil {
		return nil
	}
	var record revocation.Record
	if err := json.Unmarshal(signed.Inner.Payload.JSON, &record); err != nil {
		return utils.Wrap(utils.KindStructural, err, "unmarshal revocation record")
	}
	return o.Revocations.Register(ctx, record.Notice)
}
