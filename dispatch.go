package sfmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
	"pkt.systems/pslog"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/credentials"
	"github.com/pablo-camprubi/salesforce-mcp/internal/version"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
	"github.com/pablo-camprubi/salesforce-mcp/tools"
)

// ServerName identifies this implementation to clients.
const ServerName = "salesforce-mcp"

// connectFunc opens a Salesforce session for one resolved record.
type connectFunc func(ctx context.Context, rec credentials.Record) (*salesforce.Session, error)

// Dispatcher routes decoded JSON-RPC requests to their handlers. Every
// tools/call runs the full pipeline: resolve credentials, open a fresh
// session, look up the operation, validate arguments, invoke, translate.
type Dispatcher struct {
	registry *tools.Registry
	resolver *credentials.Resolver
	connect  connectFunc
	logger   pslog.Logger
}

// NewDispatcher wires a dispatcher from the server config. resolver and
// registry must be non-nil.
func NewDispatcher(cfg Config, resolver *credentials.Resolver, registry *tools.Registry, logger pslog.Logger) *Dispatcher {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	opts := cfg.SessionOptions()
	opts.Logger = logger
	return &Dispatcher{
		registry: registry,
		resolver: resolver,
		connect: func(ctx context.Context, rec credentials.Record) (*salesforce.Session, error) {
			return salesforce.Connect(ctx, rec, opts)
		},
		logger: logger,
	}
}

// Handle processes one request and returns the response to send, or nil
// for notifications.
func (d *Dispatcher) Handle(ctx context.Context, req *api.Request, headers map[string]string) *api.Response {
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}

	switch req.Method {
	case "initialize":
		return wrapResult(req.ID, api.InitializeResult{
			ProtocolVersion: api.ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo: api.ServerInfo{
				Name:    ServerName,
				Version: version.Current(),
			},
		})
	case "tools/list":
		return wrapResult(req.ID, api.ToolListResult{Tools: d.registry.Descriptors()})
	case "health/check":
		return wrapResult(req.ID, d.health())
	case "tools/call":
		return d.handleCall(ctx, req, headers)
	default:
		return wrapError(req.ID, &api.Error{
			Code:    api.CodeUnknownMethod,
			Message: fmt.Sprintf("unknown method %q", req.Method),
		})
	}
}

func (d *Dispatcher) handleCall(ctx context.Context, req *api.Request, headers map[string]string) *api.Response {
	var params api.CallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wrapError(req.ID, &api.Error{
				Code:    api.CodeInvalidArgs,
				Message: "tools/call params must be an object with name and arguments",
			})
		}
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return wrapError(req.ID, &api.Error{
			Code:    api.CodeInvalidArgs,
			Message: "tool name is required",
		})
	}
	args := params.Arguments
	if args == nil {
		args = map[string]any{}
	}

	callID := uuid.NewString()
	callLog := d.logger.With("call_id", callID, "tool", name)

	// Credentials resolve before the tool name is examined, so a bad
	// credential carrier fails the same way on every method.
	res, err := d.resolver.Resolve(args, headers)
	if err != nil {
		callLog.Warn("dispatch.credentials_rejected", "error", api.FailureFrom(err).Message)
		return wrapFailure(req.ID, err)
	}

	session, err := d.connect(ctx, res.Record)
	if err != nil {
		callLog.Warn("dispatch.connect_failed", "username", res.Record.Username, "error", api.FailureFrom(err).Message)
		return wrapFailure(req.ID, err)
	}
	defer session.Close()

	op, ok := d.registry.Lookup(name)
	if !ok {
		return wrapError(req.ID, &api.Error{
			Code:    api.CodeUnknownMethod,
			Message: fmt.Sprintf("unknown tool %q", name),
		})
	}
	if err := op.Validate(args); err != nil {
		return wrapFailure(req.ID, err)
	}

	started := time.Now()
	text, err := op.Invoke(ctx, session, args)
	if err != nil {
		callLog.Warn("dispatch.tool_failed",
			"tier", string(res.Tier),
			"duration", time.Since(started).String(),
			"error", api.FailureFrom(err).Message,
		)
		return wrapFailure(req.ID, err)
	}
	callLog.Info("dispatch.tool_completed",
		"tier", string(res.Tier),
		"duration", time.Since(started).String(),
	)
	return wrapResult(req.ID, api.TextResult(text))
}

func (d *Dispatcher) health() api.HealthResult {
	out := api.HealthResult{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    version.Current(),
		Goroutines: runtime.NumGoroutine(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			out.MemoryRSS = mem.RSS
		}
	}
	return out
}
