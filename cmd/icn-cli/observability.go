package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/intercoop-network/dag-core/internal/dagnode"
)

// observabilityCmd groups read-only introspection commands. These query the
// same component graph the write-path commands use directly — there is no
// HTTP round-trip through internal/gateway here, since a CLI process already
// holds the storekv.Store in-process.
func observabilityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "observability", Short: "inspect node state"}

	dagViewCmd := &cobra.Command{
		Use:   "dag-view",
		Short: "print the current DAG tips",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(false)
			if err != nil {
				return err
			}
			tips, err := app.Store.GetTips(context.Background())
			return printCIDList(tips, err)
		},
	}

	var policyScopeType, policyScopeID, policyFederationID string
	inspectPolicyCmd := &cobra.Command{
		Use:   "inspect-policy",
		Short: "print the effective policy for a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(false)
			if err != nil {
				return err
			}
			pol, err := app.Policies.PolicyFor(dagnode.Scope(policyScopeType), policyScopeID, policyFederationID)
			if err != nil {
				return err
			}
			return printResult(pol)
		},
	}
	inspectPolicyCmd.Flags().StringVar(&policyScopeType, "scope-type", "", "federation, cooperative, or community")
	inspectPolicyCmd.Flags().StringVar(&policyScopeID, "scope-id", "", "scope id")
	inspectPolicyCmd.Flags().StringVar(&policyFederationID, "federation-id", "", "federation id")

	var quorumFederationID, quorumScopeID string
	validateQuorumCmd := &cobra.Command{
		Use:   "validate-quorum",
		Short: "print the join protocol's current state for a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(false)
			if err != nil {
				return err
			}
			state, err := app.Join.State(context.Background(), quorumFederationID, quorumScopeID)
			if err != nil {
				return err
			}
			proof, ready, err := app.Join.ReadyForAttestation(context.Background(), quorumFederationID, quorumScopeID)
			if err != nil {
				return err
			}
			return printResult(map[string]interface{}{"state": state, "ready_for_attestation": ready, "quorum_proof": proof})
		},
	}
	validateQuorumCmd.Flags().StringVar(&quorumFederationID, "federation-id", "", "federation id")
	validateQuorumCmd.Flags().StringVar(&quorumScopeID, "scope-id", "", "scope id under review")

	var activityScope, activityScopeID string
	activityLogCmd := &cobra.Command{
		Use:   "activity-log",
		Short: "print every committed node under a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(false)
			if err != nil {
				return err
			}
			nodes, err := app.Store.GetNodesByScope(context.Background(), dagnode.Scope(activityScope), activityScopeID)
			if err != nil {
				return err
			}
			out := make([]map[string]interface{}, 0, len(nodes))
			for _, n := range nodes {
				c, _ := n.CID()
				action, _ := n.Inner.Payload.ActionType()
				out = append(out, map[string]interface{}{"cid": c.String(), "author": n.Inner.Author, "action": action})
			}
			return printResult(out)
		},
	}
	activityLogCmd.Flags().StringVar(&activityScope, "scope", "", "federation, cooperative, or community")
	activityLogCmd.Flags().StringVar(&activityScopeID, "scope-id", "", "scope id")

	var overviewFederationID string
	overviewCmd := &cobra.Command{
		Use:   "federation-overview",
		Short: "print node count and trust bundle count for a federation",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(false)
			if err != nil {
				return err
			}
			ctx := context.Background()
			nodes, err := app.Store.GetNodesByScope(ctx, dagnode.ScopeFederation, overviewFederationID)
			if err != nil {
				return err
			}
			bundles, err := app.Bundles.ByFederation(ctx, overviewFederationID)
			if err != nil {
				return err
			}
			return printResult(map[string]interface{}{
				"federation_id": overviewFederationID,
				"node_count":    len(nodes),
				"bundle_count":  len(bundles),
			})
		},
	}
	overviewCmd.Flags().StringVar(&overviewFederationID, "federation-id", "", "federation id")

	cmd.AddCommand(dagViewCmd, inspectPolicyCmd, validateQuorumCmd, activityLogCmd, overviewCmd)
	return cmd
}
