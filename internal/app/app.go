// Package app wires configuration, storage, the classifier and notifiers
// into the clientpulse command tree.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func Main() {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// RootCmd returns the clientpulse command tree.
func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clientpulse",
		Short: "Client risk and health scoring",
		Long: `clientpulse classifies client requests, keeps a rolling window of risk
signals per client, and derives churn, expansion and margin health from it.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(ClassifyCmd())
	rootCmd.AddCommand(HealthCmd())
	rootCmd.AddCommand(SummaryCmd())
	rootCmd.AddCommand(UpgradeCmd())
	rootCmd.AddCommand(ServeCmd())
	return rootCmd
}
