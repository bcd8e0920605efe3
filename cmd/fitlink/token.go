package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/fitlink/internal/jwt"
)

// newTokenCmd emite bearer tokens para pruebas locales y scripts de soporte.
func newTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Herramientas de tokens de acceso",
	}

	var (
		userID int64
		ttl    time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Emite un access token para un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user es requerido")
			}
			cfg := opts.cfg
			iss, err := jwt.NewIssuer(cfg.Auth.Issuer, cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}
			iss.AccessTTL = cfg.Auth.TokenTTL.Duration

			tok, exp, err := iss.IssueAccess(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires_at=%s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	issue.Flags().Int64Var(&userID, "user", 0, "ID del usuario")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "Duración del token (0 = auth.token_ttl)")

	cmd.AddCommand(issue)
	return cmd
}
