// hustlecollector collects side-hustle case studies and serves the
// moderation and query API.
//
// Usage:
//
//	hustlecollector serve
//	hustlecollector collect [--target=N] [--rounds=N]
//	hustlecollector backfill
//	hustlecollector migrate [--down]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "hustlecollector",
	Short: "Side-hustle case collector and moderation API",
	Long: "hustlecollector fetches posts from Reddit, Product Hunt and Indie Hackers,\n" +
		"extracts structured cases with an AI model and stores them for moderation.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
