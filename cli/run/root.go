package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fedauction/cli/root"
	"fedauction/internal/core"
	"fedauction/internal/setup"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

var debugFlag bool

func init() {
	runCmd.Flags().BoolVar(&debugFlag, "debug", false, "Log at debug level")
	root.RootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured round",
	Long:  `Deploy the task, join the simulated workers and run every configured round. Configuration comes from the environment, .env and ~/.config/.fedauction.json.

HALT_ON_MISMATCH=1 stops the run when the ledger's round commitment differs from the local one. The check runs after rewards are distributed, so the halted round stays paid but is not advanced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var deps *setup.Dependencies
		if debugFlag {
			deps = setup.Init(zapcore.DebugLevel)
		} else {
			deps = setup.Init()
		}
		if deps.Mongo != nil {
			defer func() {
				if err := deps.Mongo.Disconnect(context.Background()); err != nil {
					deps.Log.Errorw("failed disconnecting from mongo", "error", err)
				}
			}()
		}

		c, err := core.CreateCore(deps)
		if err != nil {
			deps.Log.Errorw("Failed creating coordinator", "error", err)
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if _, err := c.Run(ctx); err != nil {
			deps.Log.Errorw("Run failed", "error", err)
			return err
		}
		return nil
	},
}
