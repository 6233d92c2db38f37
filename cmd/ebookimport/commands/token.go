package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/ebookimport/auth"
)

// NewTokenCmd creates the token command, which mints a bearer token signed
// with the configured JWT secret. Meant for local testing of the API.
func NewTokenCmd() *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tok, err := auth.GenerateToken([]byte(cfg.JWTSecret), &auth.Claims{
				UserID:   user,
				Username: user,
				Role:     role,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id (required)")
	cmd.Flags().StringVar(&role, "role", "user", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
