package commitment

import (
	"fmt"
	"strconv"

	"fedauction/cli/root"
	"fedauction/internal/commitment"

	"github.com/spf13/cobra"
)

var verifyFlag string

func init() {
	commitmentCmd.Flags().StringVar(&verifyFlag, "verify", "", "Hash to check against the round commitment")
	root.RootCmd.AddCommand(commitmentCmd)
}

var commitmentCmd = &cobra.Command{
	Use:   "commitment <round>",
	Short: "Print the commitment hash of a round",
	Long:  `Print keccak256 over the single byte round+1, the value the ledger checks at verification.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid round %q: %w", args[0], err)
		}
		if verifyFlag == "" {
			h, err := commitment.ForRound(r)
			if err != nil {
				return err
			}
			fmt.Println(h.Hex())
			return nil
		}
		got, err := commitment.ParseHex(verifyFlag)
		if err != nil {
			return err
		}
		ok, err := commitment.Verify(r, got)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("hash does not match round %d", r)
		}
		fmt.Printf("hash matches round %d\n", r)
		return nil
	},
}
