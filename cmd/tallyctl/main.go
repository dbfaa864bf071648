package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "tallyctl",
	Short: "Operate a running tally server",
	Long: `Operate a running tally server over its HTTP API.

Examples:
  tallyctl ingest ./invoice.pdf --source batch
  tallyctl invoices list --status exception
  tallyctl reviews decide 4f1c... --decision continue --set total_amount=1842.50 --by ap-clerk
  tallyctl dlq redrive 9a2e... --by oncall`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "", "base URL of the tally API (default http://127.0.0.1:8080/api, env TALLYCTL_API)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(invoicesCmd)
	rootCmd.AddCommand(reviewsCmd)
	rootCmd.AddCommand(dlqCmd)
	rootCmd.AddCommand(exceptionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
