package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jonathan/talent-search/internal/grading"
)

var suggestJobTitle string

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Print the default grading template as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(grading.Suggest(suggestJobTitle, ""))
	},
}

func init() {
	suggestCmd.Flags().StringVar(&suggestJobTitle, "job-title", "", "Job title of the search")
	rootCmd.AddCommand(suggestCmd)
}
