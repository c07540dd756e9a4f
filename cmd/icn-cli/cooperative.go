package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/intercoop-network/dag-core/internal/bootstrap"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/pipeline"
)

// cooperativeCmd groups the commands that operate at cooperative scope:
// founding a cooperative and requesting its admission into a federation.
func cooperativeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cooperative", Short: "manage a cooperative"}

	var scopeID, federationID, name, description string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "found a new cooperative genesis",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(true)
			if err != nil {
				return err
			}
			genesis, err := bootstrap.NewCooperativeGenesis(app.Key, scopeID, federationID, name, description, time.Now())
			if err != nil {
				return err
			}
			c, err := app.Orchestrator.Submit(context.Background(), genesis, time.Now(), pipeline.Aux{})
			if err != nil {
				return err
			}
			return printResult(map[string]string{"cooperative_genesis_cid": c.String(), "scope_id": scopeID})
		},
	}
	createCmd.Flags().StringVar(&scopeID, "scope-id", "", "cooperative scope id, e.g. coop:mutual")
	createCmd.Flags().StringVar(&federationID, "federation-id", "", "federation id this cooperative will request to join")
	createCmd.Flags().StringVar(&name, "name", "", "cooperative name")
	createCmd.Flags().StringVar(&description, "description", "", "cooperative description")

	var joinScopeID, joinFederationID, joinGenesisCID, joinFedGenesisCID string
	joinCmd := &cobra.Command{
		Use:   "join-federation",
		Short: "request this cooperative's admission into a federation",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(true)
			if err != nil {
				return err
			}
			return requestJoin(app, dagnode.ScopeCooperative, "CooperativeJoinRequest", joinFederationID, joinScopeID, joinGenesisCID, joinFedGenesisCID)
		},
	}
	joinCmd.Flags().StringVar(&joinScopeID, "scope-id", "", "this cooperative's scope id")
	joinCmd.Flags().StringVar(&joinFederationID, "federation-id", "", "federation id to request admission into")
	joinCmd.Flags().StringVar(&joinGenesisCID, "scope-genesis-cid", "", "this cooperative's genesis node cid")
	joinCmd.Flags().StringVar(&joinFedGenesisCID, "federation-genesis-cid", "", "the federation's genesis node cid")

	cmd.AddCommand(createCmd, joinCmd)
	return cmd
}
