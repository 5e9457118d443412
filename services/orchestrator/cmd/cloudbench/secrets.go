package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cloudbench/services/orchestrator/internal/secrets"
)

func newSecretsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted credentials file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var (
		in             string
		out            string
		recipients     []string
		recipientsFile string
	)
	seal := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a plaintext credentials dotenv file with age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				return errors.New("--in is required")
			}
			if out == "" {
				out = a.cfg.SecretsFile
			}
			if out == "" {
				return errors.New("--out is required when CLOUDBENCH_SECRETS_FILE is unset")
			}
			rs, err := secrets.ParseRecipients(recipients, recipientsFile)
			if err != nil {
				return err
			}
			if err := secrets.SealFile(in, out, rs...); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "sealed %s for %d recipient(s)\n", out, len(rs))
			return nil
		},
	}
	seal.Flags().StringVar(&in, "in", "", "Plaintext dotenv file with the ARM_* credentials")
	seal.Flags().StringVar(&out, "out", "", "Encrypted output path (default CLOUDBENCH_SECRETS_FILE)")
	seal.Flags().StringArrayVar(&recipients, "recipient", nil, "age public key (repeatable)")
	seal.Flags().StringVar(&recipientsFile, "recipients-file", "", "File of age public keys, one per line")

	cmd.AddCommand(seal)
	return cmd
}
