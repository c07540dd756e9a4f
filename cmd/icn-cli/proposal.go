package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/policy"
	"github.com/intercoop-network/dag-core/internal/quorum"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// proposalCmd groups the generic scope-policy update commands: submitting a
// new ScopePolicy for a scope, and approving a pending proposal with a
// quorum proof over its signable bytes. The policy shape itself
// (ScopeType/ScopeID/AllowedActions) is the scope-lineage policy enforcer's
// own ScopePolicy, not a separate proposal-specific type.
func proposalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "proposal", Short: "submit and approve scope policy updates"}

	var (
		proposalID, scopeType, scopeID, federationID, policyFile string
		quorumType                                               string
		quorumParticipants                                       []string
	)
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "submit a new policy update proposal for a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(true)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(policyFile)
			if err != nil {
				return utils.Wrap(utils.KindStorage, err, "read policy file "+policyFile)
			}
			var newPolicy policy.ScopePolicy
			if err := json.Unmarshal(raw, &newPolicy); err != nil {
				return utils.Wrap(utils.KindStructural, err, "decode policy file "+policyFile)
			}
			participants := make([]identity.Did, 0, len(quorumParticipants))
			for _, p := range quorumParticipants {
				participants = append(participants, identity.Did(p))
			}
			now := time.Now()
			c, err := buildAndSubmit(app, map[string]interface{}{
				"type":        "PolicyUpdateProposal",
				"proposal_id": proposalID,
				"new_policy":  newPolicy,
				"quorum_config": quorum.Config{
					Type:         quorum.ConfigType(quorumType),
					Participants: participants,
				},
			}, nil, dagnode.Scope(scopeType), scopeID, federationID, now)
			if err != nil {
				return err
			}
			return printResult(map[string]string{"proposal_cid": c.String()})
		},
	}
	submitCmd.Flags().StringVar(&proposalID, "proposal-id", "", "unique proposal id")
	submitCmd.Flags().StringVar(&scopeType, "scope-type", "", "federation, cooperative, or community")
	submitCmd.Flags().StringVar(&scopeID, "scope-id", "", "scope id the new policy applies to")
	submitCmd.Flags().StringVar(&federationID, "federation-id", "", "federation id")
	submitCmd.Flags().StringVar(&policyFile, "policy-file", "", "path to a json-encoded ScopePolicy")
	submitCmd.Flags().StringVar(&quorumType, "quorum-type", string(quorum.TypeAll), "majority, threshold, weighted, or all")
	submitCmd.Flags().StringSliceVar(&quorumParticipants, "participant", nil, "eligible approver Did (repeatable)")

	var approveProposalCID string
	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "sign and submit this node's approval of a pending proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(true)
			if err != nil {
				return err
			}
			proposalCID, err := parseCIDArg(approveProposalCID)
			if err != nil {
				return err
			}
			proposalNode, err := app.Store.GetNode(context.Background(), proposalCID)
			if err != nil {
				return err
			}
			var proposal policy.UpdateProposal
			if err := json.Unmarshal(proposalNode.Inner.Payload.JSON, &proposal); err != nil {
				return utils.Wrap(utils.KindStructural, err, "decode policy update proposal")
			}
			hash, err := proposalSignableHash(proposal)
			if err != nil {
				return err
			}
			proof := quorum.Proof{Entries: []quorum.SignaturePair{
				{Signer: app.Key.Did, Signature: app.Key.Sign(hash)},
			}}
			now := time.Now()
			c, err := buildAndSubmit(app, map[string]interface{}{
				"type":        "PolicyUpdateApproval",
				"proposal_id": proposal.ProposalID,
				"proof":       proof,
			}, []cid.Cid{proposalCID}, proposalNode.Inner.Metadata.Scope, proposalNode.Inner.Metadata.ScopeID, proposalNode.Inner.Metadata.FederationID, now)
			if err != nil {
				return err
			}
			return printResult(map[string]string{"approval_cid": c.String()})
		},
	}
	approveCmd.Flags().StringVar(&approveProposalCID, "proposal-cid", "", "the proposal node's cid")

	cmd.AddCommand(submitCmd, approveCmd)
	return cmd
}

// proposalSignableHash mirrors policy's unexported proposalHash: the quorum
// proof a PolicyUpdateApproval carries signs proposal_id and new_policy
// alone, not the whole proposal envelope.
func proposalSignableHash(p policy.UpdateProposal) ([]byte, error) {
	type signable struct {
		ProposalID string             `cbor:"proposal_id"`
		NewPolicy  policy.ScopePolicy `cbor:"new_policy"`
	}
	return canon.Encode(signable{ProposalID: p.ProposalID, NewPolicy: p.NewPolicy})
}
