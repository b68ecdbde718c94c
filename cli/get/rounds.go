package get

import (
	"context"
	"fmt"
	"time"

	"fedauction/internal/setup"
	"fedauction/internal/store"

	"github.com/manifold-inc/manifold-sdk/lib/utils"
	"github.com/spf13/cobra"
)

var (
	runFlag   string
	limitFlag int64
)

func init() {
	roundsCmd.Flags().StringVar(&runFlag, "run", "", "Only show rounds of this run id")
	roundsCmd.Flags().Int64Var(&limitFlag, "limit", 10, "Number of rounds to show")
	getCmd.AddCommand(roundsCmd)
}

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "Show archived round reports",
	Long:  `Show the latest round reports stored in mongo, newest first`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := setup.InitMongo()
		if err != nil {
			return utils.Wrap("Failed connecting to mongo", err)
		}
		defer func() {
			_ = client.Disconnect(context.Background())
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		records, err := store.New(client, nil).Recent(ctx, runFlag, limitFlag)
		if err != nil {
			return utils.Wrap("Failed reading rounds", err)
		}
		if len(records) == 0 {
			fmt.Println("No rounds found")
			return nil
		}
		for _, r := range records {
			status := "ok"
			if r.Error != "" {
				status = "failed at " + r.FailedPhase
			}
			fmt.Printf("%s round %d [%s] %s\n", r.RunID, r.Round, time.Unix(r.Timestamp, 0).Format(time.RFC3339), status)
			fmt.Printf("  committee: %v\n", r.Committee)
			fmt.Printf("  rewards:   %v\n", r.Rewards)
			fmt.Printf("  verified:  %t advanced: %t\n", r.Verified, r.Advanced)
			for _, a := range r.Abstained {
				fmt.Printf("  abstained: %s (%s: %s)\n", a.Address, a.Phase, a.Error)
			}
		}
		return nil
	},
}
