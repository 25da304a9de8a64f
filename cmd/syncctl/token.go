package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bilzee/dms-sync/internal/service"
)

var errNoSignKey = errors.New("no token sign key configured (APP_TOKEN_SIGN_KEY)")

func newTokenCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "issue <user>",
		Short: "Sign a bearer token for user with the server's key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if cfg.App.TokenSignKey == "" {
				return errNoSignKey
			}

			token, err := service.NewAuthService(cfg.App, e.logger).CreateToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token.SignedString)
			return nil
		},
	})

	return cmd
}
