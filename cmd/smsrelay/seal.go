package main

import (
	"fmt"
	"strings"

	"smsrelay/internal/crypto"
	"smsrelay/internal/models"

	"github.com/spf13/cobra"
)

func init() {
	sealCmd.Flags().String("key", "", "Base64 DER SubjectPublicKeyInfo RSA public key")
	sealCmd.Flags().Bool("hybrid", false, "Use RSA-wrapped AES-GCM instead of plain RSA-OAEP")
	_ = sealCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(sealCmd)
}

var sealCmd = &cobra.Command{
	Use:   "seal <text>",
	Short: "Seal text with a public key the way the relay seals batches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encoded, _ := cmd.Flags().GetString("key")
		hybrid, _ := cmd.Flags().GetBool("hybrid")

		key, err := crypto.LoadPublicKey(encoded)
		if err != nil {
			return err
		}

		plaintext := []byte(strings.Join(args, " "))
		var sealed models.SealedPayload
		if hybrid {
			sealed, err = crypto.SealHybrid(plaintext, key)
		} else {
			sealed, err = crypto.Seal(plaintext, key)
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(sealed))
		return nil
	},
}
