package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/intercoop-network/dag-core/internal/bootstrap"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/pipeline"
)

// communityCmd groups the commands that operate at community scope:
// founding a community and requesting its admission into a federation.
func communityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "community", Short: "manage a community"}

	var scopeID, federationID, name, description string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "found a new community genesis",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(true)
			if err != nil {
				return err
			}
			genesis, err := bootstrap.NewCommunityGenesis(app.Key, scopeID, federationID, name, description, time.Now())
			if err != nil {
				return err
			}
			c, err := app.Orchestrator.Submit(context.Background(), genesis, time.Now(), pipeline.Aux{})
			if err != nil {
				return err
			}
			return printResult(map[string]string{"community_genesis_cid": c.String(), "scope_id": scopeID})
		},
	}
	createCmd.Flags().StringVar(&scopeID, "scope-id", "", "community scope id, e.g. com:beta")
	createCmd.Flags().StringVar(&federationID, "federation-id", "", "federation id this community will request to join")
	createCmd.Flags().StringVar(&name, "name", "", "community name")
	createCmd.Flags().StringVar(&description, "description", "", "community description")

	var joinScopeID, joinFederationID, joinGenesisCID, joinFedGenesisCID string
	joinCmd := &cobra.Command{
		Use:   "join-federation",
		Short: "request this community's admission into a federation",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(true)
			if err != nil {
				return err
			}
			return requestJoin(app, dagnode.ScopeCommunity, "CommunityJoinRequest", joinFederationID, joinScopeID, joinGenesisCID, joinFedGenesisCID)
		},
	}
	joinCmd.Flags().StringVar(&joinScopeID, "scope-id", "", "this community's scope id")
	joinCmd.Flags().StringVar(&joinFederationID, "federation-id", "", "federation id to request admission into")
	joinCmd.Flags().StringVar(&joinGenesisCID, "scope-genesis-cid", "", "this community's genesis node cid")
	joinCmd.Flags().StringVar(&joinFedGenesisCID, "federation-genesis-cid", "", "the federation's genesis node cid")

	cmd.AddCommand(createCmd, joinCmd)
	return cmd
}
