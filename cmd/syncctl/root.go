package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:          "syncctl",
		Short:        "Administer a dms-sync deployment",
		SilenceUsage: true,
	}
	root.SetOut(e.out)

	root.AddCommand(
		newMigrateCmd(e),
		newGrantCmd(e),
		newConflictsCmd(e),
		newTokenCmd(e),
		newVersionCmd(e),
	)
	return root
}
