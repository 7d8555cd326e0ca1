package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/pablo-camprubi/salesforce-mcp/credentials"
	"github.com/pablo-camprubi/salesforce-mcp/internal/svcfields"
)

func newKeygenCommand(baseLogger pslog.Logger) *cobra.Command {
	var out string
	var force bool
	cmd := &cobra.Command{
		Use:           "keygen",
		Short:         "generate the PEM key bundle used to mint and decode credential tokens",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger := svcfields.WithSubsystem(baseLogger, "cli.keygen")
			path := strings.TrimSpace(out)
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolve home directory: %w", err)
				}
				path = filepath.Join(home, ".salesforce-mcp", "credentials.pem")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return fmt.Errorf("create bundle directory: %w", err)
			}
			if err := credentials.GenerateBundle(path, force); err != nil {
				return err
			}
			logger.Info("key bundle written", "path", path)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "bundle output path (defaults to ~/.salesforce-mcp/credentials.pem)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing bundle")
	return cmd
}
