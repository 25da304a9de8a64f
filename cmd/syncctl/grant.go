package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGrantCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user> <entity-uuid>...",
		Short: "Authorize a user for one or more entities",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := e.services(cmd.Context())
			if err != nil {
				return err
			}

			userID, entityIDs := args[0], args[1:]
			if err = services.AccessService.Grant(cmd.Context(), userID, entityIDs...); err != nil {
				return fmt.Errorf("grant failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "granted %d entities to %s\n", len(entityIDs), userID)
			return nil
		},
	}
}
