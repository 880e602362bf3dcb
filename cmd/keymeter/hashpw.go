package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var hashpwCmd = &cobra.Command{
	Use:   "hashpw <password>",
	Short: "Hash a dashboard password for auth.admin_password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		fmt.Println(string(hash))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashpwCmd)
}
