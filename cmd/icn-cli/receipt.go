package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/pipeline"
	"github.com/intercoop-network/dag-core/internal/receipt"
)

// receiptCmd groups the execution receipt commands: issuing a signed
// receipt and anchoring a reference to it on the DAG, and listing receipts
// already indexed by module or executor.
func receiptCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "receipt", Short: "issue and inspect execution receipts"}

	var (
		scope, scopeID, federationID, submitter, moduleCID, resultCID, eventID, status string
	)
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "sign a new execution receipt and anchor it on the DAG",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(true)
			if err != nil {
				return err
			}
			now := time.Now()
			r, err := receipt.Issue(app.Key, receipt.Subject{
				Scope:        dagnode.Scope(scope),
				Submitter:    identity.Did(submitter),
				ModuleCID:    moduleCID,
				ResultCID:    resultCID,
				EventID:      eventID,
				FederationID: federationID,
				Timestamp:    now,
				Status:       receipt.Status(status),
			})
			if err != nil {
				return err
			}
			receiptCID, err := app.Receipts.Put(context.Background(), r, app.Resolver)
			if err != nil {
				return err
			}
			payload := dagnode.NewExecutionReceiptRefPayload(receiptCID)
			node := dagnode.NewNode(payload, nil, app.Key.Did, dagnode.Metadata{
				Timestamp: now.Unix(), Scope: dagnode.Scope(scope), ScopeID: scopeID, FederationID: federationID,
			})
			signed, err := dagnode.Sign(node, app.Key)
			if err != nil {
				return err
			}
			anchorCID, err := app.Orchestrator.Submit(context.Background(), signed, now, pipeline.Aux{})
			if err != nil {
				return err
			}
			return printResult(map[string]string{"receipt_id": r.ID, "receipt_cid": receiptCID.String(), "anchor_cid": anchorCID.String()})
		},
	}
	issueCmd.Flags().StringVar(&scope, "scope", string(dagnode.ScopeFederation), "federation, cooperative, or community")
	issueCmd.Flags().StringVar(&scopeID, "scope-id", "", "scope id the anchor node belongs to")
	issueCmd.Flags().StringVar(&federationID, "federation-id", "", "federation id")
	issueCmd.Flags().StringVar(&submitter, "submitter", "", "did of the party that submitted the executed module")
	issueCmd.Flags().StringVar(&moduleCID, "module-cid", "", "the executed module's content identifier")
	issueCmd.Flags().StringVar(&resultCID, "result-cid", "", "the execution result's content identifier")
	issueCmd.Flags().StringVar(&eventID, "event-id", "", "optional originating event id")
	issueCmd.Flags().StringVar(&status, "status", string(receipt.StatusSuccess), "pending, success, failed, or canceled")

	var byModule, byExecutor, byFederation string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list receipt cids by module, executor, or federation",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(false)
			if err != nil {
				return err
			}
			ctx := context.Background()
			switch {
			case byModule != "":
				cids, err := app.Receipts.ByModule(ctx, byModule)
				return printCIDList(cids, err)
			case byExecutor != "":
				cids, err := app.Receipts.ByExecutor(ctx, identity.Did(byExecutor))
				return printCIDList(cids, err)
			case byFederation != "":
				cids, err := app.Receipts.ByFederation(ctx, byFederation)
				return printCIDList(cids, err)
			default:
				return printResult([]string{})
			}
		},
	}
	listCmd.Flags().StringVar(&byModule, "by-module", "", "filter by module cid")
	listCmd.Flags().StringVar(&byExecutor, "by-executor", "", "filter by executor did")
	listCmd.Flags().StringVar(&byFederation, "by-federation", "", "filter by federation id")

	cmd.AddCommand(issueCmd, listCmd)
	return cmd
}
