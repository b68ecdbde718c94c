package root

import (
	"errors"
	"fmt"
	"os"

	"fedauction/internal/setup"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	viper.SetConfigName(setup.ConfigName)
	viper.SetConfigType("json")
	viper.AddConfigPath("$HOME/.config")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	_ = godotenv.Load()
}

var RootCmd = &cobra.Command{
	Use:   "fedauction",
	Short: "Federated training round coordinator",
	Long: `Runs federated training rounds against an incentive ledger: workers train and
score each other, the best scored workers bid in a reverse auction and the
winning committee is paid from the requester's stake.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
