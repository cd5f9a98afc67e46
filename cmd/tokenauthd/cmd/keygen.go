package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/voyz/tokenauth/jwt"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a random base64 signing secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func generateSecret() (string, error) {
	raw := make([]byte, jwt.MinSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
