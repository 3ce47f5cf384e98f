package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wisbric/compute-gateway/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the compute-gateway version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "compute-gateway %s (%s)\n", version.Version, version.Commit)
			return nil
		},
	}
}
