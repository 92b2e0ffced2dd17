package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CaioWing/apkharbor/internal/auth"
)

func newTokenCommand() *cobra.Command {
	var adminPassword string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a CI token for the service API",
		Long: `Prints a new CI token and its SHA-256 hash. Give the token to the build
pipeline and add the hash to APKHARBOR_CI_TOKEN_HASHES. With
--admin-password the bcrypt hash for APKHARBOR_ADMIN_PASSWORD_HASH is
printed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, hash, err := auth.GenerateCIToken()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token: %s\n", token)
			fmt.Fprintf(out, "hash:  %s\n", hash)

			if adminPassword != "" {
				passHash, err := auth.HashPassword(adminPassword)
				if err != nil {
					return fmt.Errorf("hash admin password: %w", err)
				}
				fmt.Fprintf(out, "admin password hash: %s\n", passHash)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "also print the bcrypt hash of this admin password")
	return cmd
}

func init() {
	rootCmd.AddCommand(newTokenCommand())
}
