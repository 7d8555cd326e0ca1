package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	sfmcp "github.com/pablo-camprubi/salesforce-mcp"
	"github.com/pablo-camprubi/salesforce-mcp/internal/svcfields"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("SFMCP_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "salesforce-mcp")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func withSignalCancel(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := newCommandViper()
	cmd := &cobra.Command{
		Use:           "salesforce-mcp",
		Short:         "salesforce-mcp serves Salesforce tooling over JSON-RPC with per-request credential isolation",
		SilenceErrors: true,
		Example: `
  # Serve with a process-wide service account from the environment
  SFMCP_USERNAME=ops@example.com SFMCP_PASSWORD=secret salesforce-mcp

  # Serve with encrypted credential tokens enabled
  salesforce-mcp keygen --out ~/.salesforce-mcp/credentials.pem
  salesforce-mcp --key-bundle ~/.salesforce-mcp/credentials.pem

  # Mint a credential token for a caller
  salesforce-mcp encrypt --key-bundle ~/.salesforce-mcp/credentials.pem --username alice@example.com
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger := loggerWithLevel(baseLogger, v)
			cfg, err := serverConfig(v)
			if err != nil {
				return err
			}
			server, err := sfmcp.NewServer(sfmcp.NewServerRequest{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("listen", sfmcp.DefaultListen, "JSON-RPC listen address")
	flags.String("rpc-path", sfmcp.DefaultRPCPath, "HTTP path serving JSON-RPC requests")
	addRuntimeFlags(flags)
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	cmd.AddCommand(newMCPCommand(baseLogger))
	cmd.AddCommand(newKeygenCommand(baseLogger))
	cmd.AddCommand(newEncryptCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// addRuntimeFlags registers the flags shared by the JSON-RPC server and
// the MCP facade.
func addRuntimeFlags(flags *pflag.FlagSet) {
	flags.String("key-bundle", "", "path to PEM key bundle for encrypted credential tokens (empty disables)")
	flags.String("login-url", "", "Salesforce login host for production orgs")
	flags.String("sandbox-login-url", "", "Salesforce login host for sandbox orgs")
	flags.String("api-version", "", "Salesforce API version")
	flags.Duration("http-timeout", 0, "per-request Salesforce HTTP timeout")
	flags.Int64("max-body", sfmcp.DefaultMaxBodyBytes, "maximum JSON-RPC request body size in bytes")
	flags.String("metrics-listen", "", "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", "", "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.String("otel-endpoint", "", "OTLP trace collector endpoint (empty disables)")
	flags.String("log-level", "", "minimum log level (trace, debug, info, warn, error)")
}

// newCommandViper builds a per-command viper bound to the SFMCP_*
// environment, so parallel tests never share flag state.
func newCommandViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SFMCP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func loggerWithLevel(base pslog.Logger, v *viper.Viper) pslog.Logger {
	logLevel := strings.TrimSpace(v.GetString("log-level"))
	if logLevel == "" {
		return base
	}
	if level, ok := pslog.ParseLevel(logLevel); ok {
		return base.LogLevel(level)
	}
	svcfields.WithSubsystem(base, "cli.root").Warn("unknown log level, keeping default", "log_level", logLevel)
	return base
}

// serverConfig assembles the runtime config: flags first, then the
// SFMCP_* environment. The fallback credentials come from the
// environment only, never from flags, so they can not leak into shell
// history or process listings.
func serverConfig(v *viper.Viper) (sfmcp.Config, error) {
	cfg := sfmcp.Config{
		Listen:                v.GetString("listen"),
		RPCPath:               v.GetString("rpc-path"),
		KeyBundlePath:         strings.TrimSpace(v.GetString("key-bundle")),
		LoginURL:              v.GetString("login-url"),
		SandboxLoginURL:       v.GetString("sandbox-login-url"),
		APIVersion:            v.GetString("api-version"),
		HTTPTimeout:           v.GetDuration("http-timeout"),
		MaxBodyBytes:          v.GetInt64("max-body"),
		MetricsListen:         v.GetString("metrics-listen"),
		PprofListen:           v.GetString("pprof-listen"),
		OTLPEndpoint:          v.GetString("otel-endpoint"),
		FallbackUsername:      os.Getenv("SFMCP_USERNAME"),
		FallbackPassword:      os.Getenv("SFMCP_PASSWORD"),
		FallbackSecurityToken: os.Getenv("SFMCP_SECURITY_TOKEN"),
		FallbackInstanceURL:   os.Getenv("SFMCP_INSTANCE_URL"),
		FallbackSandbox:       parseBoolEnv(os.Getenv("SFMCP_SANDBOX")),
	}
	if err := cfg.Validate(); err != nil {
		return sfmcp.Config{}, err
	}
	return cfg, nil
}

func parseBoolEnv(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
