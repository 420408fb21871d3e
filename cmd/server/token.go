package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"insight-gateway/internal/config"
	"insight-gateway/internal/security"
)

var (
	tokenSubject string
	tokenRoles   []string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with security.jwt_secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.Security.JWTSecret == "" {
			return errors.New("security.jwt_secret is not set")
		}

		ttl := cfg.Security.JWTExpiration
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		token, err := security.NewJWTManager(cfg.Security.JWTSecret, ttl).GenerateToken(tokenSubject, tokenRoles)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "", "Token subject")
	tokenCmd.Flags().StringSliceVarP(&tokenRoles, "role", "r", []string{security.RoleReader}, "Roles to grant (reader, admin)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default security.jwt_expiration)")
	_ = tokenCmd.MarkFlagRequired("subject")
}
