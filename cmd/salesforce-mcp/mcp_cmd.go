package main

import (
	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/pablo-camprubi/salesforce-mcp/mcp"
)

func newMCPCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mcp",
		Short:         "serve the Salesforce tools over the Model Context Protocol",
		SilenceErrors: true,
		Example: `
  # Streamable HTTP transport
  salesforce-mcp mcp --listen 127.0.0.1:8001 --key-bundle ~/.salesforce-mcp/credentials.pem

  # Stdio transport for a local single-user client
  SFMCP_USERNAME=ops@example.com SFMCP_PASSWORD=secret salesforce-mcp mcp --stdio
`,
	}
	v := newCommandViper()
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		runtime, err := serverConfig(v)
		if err != nil {
			return err
		}
		server, err := mcp.NewServer(mcp.NewServerRequest{
			Config: mcp.Config{
				Listen:  v.GetString("mcp-listen"),
				MCPPath: v.GetString("mcp-path"),
				Stdio:   v.GetBool("stdio"),
				Runtime: runtime,
			},
			Logger: loggerWithLevel(baseLogger, v),
		})
		if err != nil {
			return err
		}
		return server.Run(cmd.Context())
	}

	flags := cmd.Flags()
	flags.String("mcp-listen", "127.0.0.1:8001", "MCP listen address (HTTP transport)")
	flags.String("mcp-path", "/mcp", "HTTP path serving the MCP endpoint")
	flags.Bool("stdio", false, "serve on stdio instead of HTTP")
	addRuntimeFlags(flags)
	return cmd
}
