// Package main provides the entry point for the candidate-search coordinator.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "search_agent",
	Short: "Candidate search coordinator",
	Long: "search_agent takes recruiting briefs, records the operator's grading weights, " +
		"hands confirmed searches to the automation system and tracks their progress through signed callbacks.",
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
