package get

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fedauction/cli/shared"
	"fedauction/internal/ledger"
	"fedauction/internal/ledger/httpledger"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/manifold-inc/manifold-sdk/lib/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	getCmd.AddCommand(roundCmd, committeeCmd, balancesCmd)
}

// client signs requests with the configured requester key.
func client() (ledger.Ledger, error) {
	url := shared.ConfigString("ledger_url")
	secret := shared.ConfigString("requester_key")
	network := uint16(42)
	if n := viper.GetUint("ss58_network"); n != 0 {
		network = uint16(n)
	}
	kp, err := signature.KeyringPairFromSecret(secret, network)
	if err != nil {
		return nil, utils.Wrap("Failed loading requester key", err)
	}
	return httpledger.New(httpledger.Config{BaseURL: url, Keypair: kp, Timeout: 10 * time.Second, MaxRetries: 2}), nil
}

var roundCmd = &cobra.Command{
	Use:   "round",
	Short: "Show the ledger's current round",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := client()
		if err != nil {
			return err
		}
		r, err := l.Round(context.Background())
		if err != nil {
			return utils.Wrap("Failed reading round", err)
		}
		fmt.Println(r)
		return nil
	},
}

var committeeCmd = &cobra.Command{
	Use:   "committee",
	Short: "Show the committee of the current round",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := client()
		if err != nil {
			return err
		}
		entries, err := l.Committee(context.Background())
		if err != nil {
			return utils.Wrap("Failed reading committee", err)
		}
		for _, e := range entries {
			fmt.Printf("%s score=%d bid=%d\n", e.Address, e.Score, e.Bid)
		}
		return nil
	},
}

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show rewards paid out per worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := client()
		if err != nil {
			return err
		}
		balances, err := l.Balances(context.Background())
		if err != nil {
			return utils.Wrap("Failed reading balances", err)
		}
		addrs := make([]string, 0, len(balances))
		for a := range balances {
			addrs = append(addrs, a)
		}
		sort.Strings(addrs)
		for _, a := range addrs {
			fmt.Printf("%s: %s\n", a, balances[a])
		}
		return nil
	},
}
