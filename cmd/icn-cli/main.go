// Command icn-cli is the operator-facing boundary outside the governance DAG
// core: every subcommand here builds an appContext over the core's packages
// and drives it exactly the way an embedding application would.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/intercoop-network/dag-core/pkg/utils"
)

func main() {
	root := &cobra.Command{
		Use:           "icn-cli",
		Short:         "operate a federated governance DAG core node",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&flagOutput, "output", "text", "output format: text or json")
	root.PersistentFlags().StringVarP(&flagDagDir, "dag-dir", "d", "", "path to the bbolt DAG database file (defaults to in-memory)")
	root.PersistentFlags().StringVarP(&flagKeyFile, "key", "k", "", "path to the signing key file")

	root.AddCommand(federationCmd())
	root.AddCommand(cooperativeCmd())
	root.AddCommand(communityCmd())
	root.AddCommand(dagCmd())
	root.AddCommand(proposalCmd())
	root.AddCommand(receiptCmd())
	root.AddCommand(observabilityCmd())

	if err := root.Execute(); err != nil {
		printError(err)
		os.Exit(utils.ExitCode(err))
	}
}
