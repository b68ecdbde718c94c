package config

import (
	"fmt"

	"fedauction/cli/root"
	"fedauction/cli/shared"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	ledgerURLFlag     string
	requesterKeyFlag  string
	stakeFlag         string
	auctionRuleFlag   string
	numWorkersFlag    int
	numRoundsFlag     int
	committeeSizeFlag int
	haltFlag          bool
)

func init() {
	configCmd.Flags().StringVar(&ledgerURLFlag, "ledger_url", "", "Ledger daemon url to update to")
	configCmd.Flags().StringVar(&requesterKeyFlag, "requester_key", "", "Requester secret uri to update to")
	configCmd.Flags().StringVar(&stakeFlag, "stake", "", "Task stake to update to")
	configCmd.Flags().StringVar(&auctionRuleFlag, "auction_rule", "", "Auction rule to update to (greedy|knapsack)")
	configCmd.Flags().IntVar(&numWorkersFlag, "num_workers", 0, "Number of workers to update to")
	configCmd.Flags().IntVar(&numRoundsFlag, "num_rounds", 0, "Number of rounds to update to")
	configCmd.Flags().IntVar(&committeeSizeFlag, "committee_size", 0, "Committee size to update to")
	configCmd.Flags().BoolVar(&haltFlag, "halt_on_mismatch", false, "Stop the run on a round commitment mismatch. Rewards are paid before the check, so the halted round stays paid but is not advanced")
	root.RootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Update config values",
	Long:  `Update one or more configuration values in ~/.config/.fedauction.json. Environment variables still take precedence.`,
	Run: func(cmd *cobra.Command, args []string) {
		updated := false
		set := func(key string, v any) {
			viper.Set(key, v)
			fmt.Printf("%s updated to: %v\n", key, v)
			updated = true
		}

		if ledgerURLFlag != "" {
			set("ledger_url", ledgerURLFlag)
		}
		if requesterKeyFlag != "" {
			viper.Set("requester_key", requesterKeyFlag)
			fmt.Println("requester_key updated")
			updated = true
		}
		if stakeFlag != "" {
			set("stake", stakeFlag)
		}
		if auctionRuleFlag != "" {
			set("auction_rule", auctionRuleFlag)
		}
		if numWorkersFlag != 0 {
			set("num_workers", numWorkersFlag)
		}
		if numRoundsFlag != 0 {
			set("num_rounds", numRoundsFlag)
		}
		if committeeSizeFlag != 0 {
			set("committee_size", committeeSizeFlag)
		}
		if cmd.Flags().Changed("halt_on_mismatch") {
			set("halt_on_mismatch", haltFlag)
		}

		if !updated {
			fmt.Println("No configuration values specified to update.")
			fmt.Println("Use --help to see available options.")
			return
		}

		if err := shared.WriteConfig(); err != nil {
			fmt.Printf("Failed to write config: %v\n", err)
			fmt.Printf("Config file path: %s\n", viper.ConfigFileUsed())
			return
		}
	},
}
