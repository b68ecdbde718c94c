package get

import (
	"fmt"

	"fedauction/cli/root"

	"github.com/spf13/cobra"
)

func init() {
	root.RootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch data from mongo / ledger",
	Long:  `Fetch archived rounds from mongo or live state from the ledger daemon`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Use one of the subcommands, see --help")
	},
}
