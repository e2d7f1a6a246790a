package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/video-intake/pkg/intake/auth"
)

// newTokenCmd issues bearer tokens for AUTH_MODE=jwt in local development.
func newTokenCmd(a *app) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			if a.cfg.IsProduction() {
				return errors.New("token issuing is disabled in production")
			}

			var opts []auth.JWTOption
			if a.cfg.Auth.JWTIssuer != "" {
				opts = append(opts, auth.WithIssuer(a.cfg.Auth.JWTIssuer))
			}
			if a.cfg.Auth.JWTAudience != "" {
				opts = append(opts, auth.WithAudience(a.cfg.Auth.JWTAudience))
			}
			issuer, err := auth.NewJWT(a.cfg.Auth.JWTSecret, opts...)
			if err != nil {
				return err
			}

			token, err := issuer.Issue(userID, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "subject of the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
