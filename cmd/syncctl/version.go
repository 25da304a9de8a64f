package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bilzee/dms-sync/models"
)

func newVersionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the syncctl build and the configured application version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			build := models.NewAppBuildInfo(buildVersion, "", "").BuildVersion()

			cfg, err := e.config()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "syncctl %s\napp version %s\n", build, cfg.App.Version)
			return nil
		},
	}
}
