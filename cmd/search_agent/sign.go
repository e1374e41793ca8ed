package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/talent-search/internal/signature"
)

var signSecret string

var signCmd = &cobra.Command{
	Use:   "sign [payload-file]",
	Short: "Print the signature header for a payload",
	Long: `Sign a payload with the shared webhook secret and print the header the
automation system must send. Reads stdin when no file is given. The secret
comes from --secret or WEBHOOK_SECRET.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "Shared secret (default: $WEBHOOK_SECRET)")
	rootCmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	secret := signSecret
	if secret == "" {
		secret = os.Getenv("WEBHOOK_SECRET")
	}
	signer, err := signature.NewSigner(secret)
	if err != nil {
		return fmt.Errorf("a secret is required: %w", err)
	}

	var payload []byte
	if len(args) == 1 {
		payload, err = os.ReadFile(args[0])
	} else {
		payload, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", signature.HeaderName, signer.Sign(payload))
	return nil
}
