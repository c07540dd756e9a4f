package main

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/pipeline"
)

// dagCmd groups commands that operate on the raw DAG rather than any single
// governance object: anchoring an arbitrary reference payload, replaying the
// committed order, verifying a branch's signature chain, and walking the
// thread between two nodes.
func dagCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dag", Short: "inspect and anchor raw DAG content"}

	var (
		anchorScope, anchorScopeID, anchorFederationID, anchorCIDRef string
		anchorParents                                                []string
	)
	anchorCmd := &cobra.Command{
		Use:   "submit-anchor",
		Short: "submit a reference node anchoring an external content identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(true)
			if err != nil {
				return err
			}
			refCID, err := parseCIDArg(anchorCIDRef)
			if err != nil {
				return err
			}
			parents := make([]cid.Cid, 0, len(anchorParents))
			for _, p := range anchorParents {
				pc, err := parseCIDArg(p)
				if err != nil {
					return err
				}
				parents = append(parents, pc)
			}
			now := time.Now()
			payload := dagnode.NewReferencePayload(refCID)
			node := dagnode.NewNode(payload, parents, app.Key.Did, dagnode.Metadata{
				Timestamp: now.Unix(), Scope: dagnode.Scope(anchorScope), ScopeID: anchorScopeID, FederationID: anchorFederationID,
			})
			signed, err := dagnode.Sign(node, app.Key)
			if err != nil {
				return err
			}
			c, err := app.Orchestrator.Submit(context.Background(), signed, now, pipeline.Aux{})
			if err != nil {
				return err
			}
			return printResult(map[string]string{"anchor_cid": c.String()})
		},
	}
	anchorCmd.Flags().StringVar(&anchorScope, "scope", string(dagnode.ScopeFederation), "scope type: federation, cooperative, or community")
	anchorCmd.Flags().StringVar(&anchorScopeID, "scope-id", "", "scope id")
	anchorCmd.Flags().StringVar(&anchorFederationID, "federation-id", "", "federation id")
	anchorCmd.Flags().StringVar(&anchorCIDRef, "ref-cid", "", "the content identifier being anchored")
	anchorCmd.Flags().StringSliceVar(&anchorParents, "parent", nil, "parent node cid (repeatable)")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "print every committed node in causal order",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(false)
			if err != nil {
				return err
			}
			nodes, err := app.Store.GetOrderedNodes(context.Background())
			if err != nil {
				return err
			}
			out := make([]map[string]interface{}, 0, len(nodes))
			for _, n := range nodes {
				c, _ := n.CID()
				out = append(out, map[string]interface{}{
					"cid": c.String(), "author": n.Inner.Author,
					"scope": n.Inner.Metadata.Scope, "scope_id": n.Inner.Metadata.ScopeID,
				})
			}
			return printResult(out)
		},
	}

	var verifyTip string
	verifyCmd := &cobra.Command{
		Use:   "verify-bundle",
		Short: "verify the signature chain of every node reachable from a tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(false)
			if err != nil {
				return err
			}
			tip, err := parseCIDArg(verifyTip)
			if err != nil {
				return err
			}
			if err := app.Store.VerifyBranch(context.Background(), tip, app.Resolver); err != nil {
				return err
			}
			return printResult(map[string]string{"verified": tip.String()})
		},
	}
	verifyCmd.Flags().StringVar(&verifyTip, "tip", "", "tip node cid to verify back to genesis")

	var exportFrom, exportTo string
	exportThreadCmd := &cobra.Command{
		Use:   "export-thread",
		Short: "print the node path between two committed cids",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(false)
			if err != nil {
				return err
			}
			from, err := parseCIDArg(exportFrom)
			if err != nil {
				return err
			}
			to, err := parseCIDArg(exportTo)
			if err != nil {
				return err
			}
			nodes, err := app.Store.FindPath(context.Background(), from, to)
			if err != nil {
				return err
			}
			out := make([]string, 0, len(nodes))
			for _, n := range nodes {
				c, _ := n.CID()
				out = append(out, c.String())
			}
			return printResult(out)
		},
	}
	exportThreadCmd.Flags().StringVar(&exportFrom, "from", "", "starting node cid")
	exportThreadCmd.Flags().StringVar(&exportTo, "to", "", "ending node cid")

	cmd.AddCommand(anchorCmd, replayCmd, verifyCmd, exportThreadCmd)
	return cmd
}
