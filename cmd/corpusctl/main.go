package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "corpusctl",
		Short:         "Manage the embedded scripture corpus and its local cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("cache", "", "corpus cache path (defaults to CORPUS_CACHE_PATH)")

	rootCmd.AddCommand(
		fetchCmd(),
		inspectCmd(),
		searchCmd(),
		exportPGCmd(),
	)
	return rootCmd
}
