package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pablo-camprubi/salesforce-mcp/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the salesforce-mcp version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Current())
			return nil
		},
	}
}
