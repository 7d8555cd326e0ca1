// Package mcp exposes the Salesforce tool registry over the Model
// Context Protocol, either as a streamable HTTP endpoint or on stdio.
//
// HTTP callers carry per-request credentials in the standard carriers:
// the reserved tool arguments or the X-Salesforce-* headers. Because a
// fresh protocol server is built for every HTTP request, header-borne
// credentials never leak between callers. Stdio mode serves a single
// local user on the process fallback credentials or the argument
// carriers.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"pkt.systems/pslog"

	sfmcp "github.com/pablo-camprubi/salesforce-mcp"
	"github.com/pablo-camprubi/salesforce-mcp/credentials"
	"github.com/pablo-camprubi/salesforce-mcp/internal/svcfields"
	"github.com/pablo-camprubi/salesforce-mcp/internal/version"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
	"github.com/pablo-camprubi/salesforce-mcp/tools"
)

// Config controls the MCP facade runtime behavior. Runtime carries the
// credential and Salesforce connection settings shared with the
// JSON-RPC server.
type Config struct {
	Listen  string
	MCPPath string
	Stdio   bool
	Runtime sfmcp.Config
}

// Server is the MCP facade service contract.
type Server interface {
	Run(context.Context) error
}

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	Config Config
	Logger pslog.Logger
}

type server struct {
	cfg          Config
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	toolLog      pslog.Logger
	registry     *tools.Registry
	resolver     *credentials.Resolver
	sessionOpts  salesforce.Options
	httpServer   *http.Server
	mcpHTTPPath  string
}

// NewServer constructs the MCP facade service.
func NewServer(req NewServerRequest) (Server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if err := cfg.Runtime.Validate(); err != nil {
		return nil, err
	}

	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(os.Stderr).With("app", sfmcp.ServerName)
	}

	var codec *credentials.Codec
	if cfg.Runtime.KeyBundlePath != "" {
		codec = credentials.NewCodec(cfg.Runtime.KeyBundlePath)
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: svcfields.WithSubsystem(logger, "server.lifecycle.mcp"),
		toolLog:      svcfields.WithSubsystem(logger, "mcp.tools"),
		registry:     tools.NewRegistry(),
		resolver: credentials.NewResolver(codec, cfg.Runtime.FallbackRecord(),
			svcfields.WithSubsystem(logger, "mcp.credentials")),
		mcpHTTPPath: cleanHTTPPath(cfg.MCPPath),
	}
	opts := cfg.Runtime.SessionOptions()
	opts.Logger = svcfields.WithSubsystem(logger, "mcp.salesforce")
	s.sessionOpts = opts

	if !cfg.Stdio {
		s.httpServer = &http.Server{
			Addr:    cfg.Listen,
			Handler: s.buildMux(),
		}
	}
	return s, nil
}

func (s *server) Run(ctx context.Context) error {
	if s.cfg.Stdio {
		s.lifecycleLog.Info("starting salesforce MCP facade", "transport", "stdio")
		srv := s.buildMCPServer(nil)
		return srv.Run(ctx, &mcpsdk.StdioTransport{})
	}

	s.lifecycleLog.Info("starting salesforce MCP facade",
		"transport", "http",
		"listen", s.cfg.Listen,
		"mcp_path", s.mcpHTTPPath,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
}

func (s *server) buildMux() *http.ServeMux {
	// A fresh protocol server per request binds that request's headers
	// into every tool handler it registers.
	streamable := mcpsdk.NewStreamableHTTPHandler(func(r *http.Request) *mcpsdk.Server {
		return s.buildMCPServer(flattenHeaders(r.Header))
	}, nil)

	mux := http.NewServeMux()
	mux.Handle(s.mcpHTTPPath, streamable)
	return mux
}

func (s *server) buildMCPServer(headers map[string]string) *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    sfmcp.ServerName,
		Version: version.Current(),
	}, &mcpsdk.ServerOptions{
		Instructions: serverInstructions,
	})
	for _, name := range s.registry.Names() {
		op, ok := s.registry.Lookup(name)
		if !ok {
			continue
		}
		mcpsdk.AddTool(srv, &mcpsdk.Tool{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: schemaFor(op),
		}, withStructuredToolErrors(s.toolHandler(op, headers)))
	}
	return srv
}

// toolReport is the structured output every tool returns.
type toolReport struct {
	Text string `json:"text" jsonschema:"Human-readable tool result"`
}

func (s *server) toolHandler(op *tools.Operation, headers map[string]string) mcpsdk.ToolHandlerFor[map[string]any, toolReport] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input map[string]any) (*mcpsdk.CallToolResult, toolReport, error) {
		args := cloneArgs(input)

		res, err := s.resolver.Resolve(args, headers)
		if err != nil {
			return nil, toolReport{}, err
		}
		session, err := salesforce.Connect(ctx, res.Record, s.sessionOpts)
		if err != nil {
			return nil, toolReport{}, err
		}
		defer session.Close()

		if err := op.Validate(args); err != nil {
			return nil, toolReport{}, err
		}
		started := time.Now()
		text, err := op.Invoke(ctx, session, args)
		if err != nil {
			return nil, toolReport{}, err
		}
		s.toolLog.Info("mcp.tool_completed",
			"tool", op.Name,
			"tier", string(res.Tier),
			"duration", time.Since(started).String(),
		)
		return nil, toolReport{Text: text}, nil
	}
}

// schemaFor converts a registry input schema into the SDK's schema
// type. Registration panics on malformed schemas the same way the
// registry panics on malformed operations.
func schemaFor(op *tools.Operation) *jsonschema.Schema {
	raw, err := json.Marshal(op.InputSchema())
	if err != nil {
		panic(fmt.Sprintf("mcp: encode schema for %s: %v", op.Name, err))
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		panic(fmt.Sprintf("mcp: decode schema for %s: %v", op.Name, err))
	}
	return &schema
}

func cloneArgs(source map[string]any) map[string]any {
	out := make(map[string]any, len(source))
	for key, value := range source {
		out[key] = value
	}
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:8001"
	}
	if strings.TrimSpace(cfg.MCPPath) == "" {
		cfg.MCPPath = "/mcp"
	}
}

func cleanHTTPPath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "/mcp"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

const serverInstructions = `Salesforce tool server. Every tool call opens a fresh Salesforce
session from the credentials carried on that call: pass an encrypted
token in the _sf_encrypted_credentials argument, a plaintext credential
object in _sf_credentials, or the equivalent X-Salesforce-* HTTP
headers. Calls without credentials fall back to the server's configured
service account, if any.`
