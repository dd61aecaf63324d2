package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"invoicebot/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoicebot",
	Short: "invoicebot - invoice insight chat assistant",
	Long: `invoicebot is a webhook-driven chat assistant that ingests invoice
data (inline text or uploaded CSV files) and replies with payment
prioritization and anomaly insights, computed locally or via an LLM
completion call.

Run "invoicebot serve" to start the webhook server.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
