package sfmcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/credentials"
	"github.com/pablo-camprubi/salesforce-mcp/internal/svcfields"
	"github.com/pablo-camprubi/salesforce-mcp/internal/version"
	"github.com/pablo-camprubi/salesforce-mcp/tools"
)

// Server is the JSON-RPC service contract.
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
	rpcLog       pslog.Logger
	dispatcher   *Dispatcher
	httpServer   *http.Server
}

// NewServer constructs the salesforce-mcp JSON-RPC server.
func NewServer(req NewServerRequest) (Server, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(os.Stderr).With("app", ServerName)
	}

	var codec *credentials.Codec
	if cfg.KeyBundlePath != "" {
		codec = credentials.NewCodec(cfg.KeyBundlePath)
	}
	resolver := credentials.NewResolver(codec, cfg.FallbackRecord(),
		svcfields.WithSubsystem(logger, "rpc.credentials"))
	registry := tools.NewRegistry()

	s := &server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: svcfields.WithSubsystem(logger, "server.lifecycle"),
		rpcLog:       svcfields.WithSubsystem(logger, "rpc.http"),
		dispatcher:   NewDispatcher(cfg, resolver, registry, svcfields.WithSubsystem(logger, "rpc.dispatch")),
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Listen,
		Handler: s.buildMux(),
	}
	return s, nil
}

func (s *server) Run(ctx context.Context) error {
	s.lifecycleLog.Info("server.start",
		"listen", s.cfg.Listen,
		"rpc_path", s.cfg.RPCPath,
		"version", version.Current(),
		"key_bundle", s.cfg.KeyBundlePath != "",
		"fallback_credentials", s.cfg.FallbackRecord() != nil,
	)

	telemetry, err := setupTelemetry(ctx, s.cfg.OTLPEndpoint, s.cfg.MetricsListen, s.cfg.PprofListen, svcfields.WithSubsystem(s.logger, "telemetry"))
	if err != nil {
		return err
	}
	if telemetry != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = telemetry.Shutdown(shutdownCtx)
		}()
	}

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
		s.lifecycleLog.Info("server.stopped")
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
}

func (s *server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.RPCPath, s.handleRPC)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

func (s *server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := xid.New().String()
	log := s.rpcLog.With("request_id", requestID)

	req, rpcErr := decodeRequest(r.Body, s.cfg.MaxBodyBytes)
	if rpcErr != nil {
		var id any
		if req != nil {
			id = req.ID
		}
		log.Warn("rpc.rejected", "code", rpcErr.Code, "error", rpcErr.Message)
		writeResponse(w, log, wrapError(id, rpcErr))
		return
	}

	log.Debug("rpc.request", "method", req.Method)
	resp := s.dispatcher.Handle(r.Context(), req, flattenHeaders(r.Header))
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeResponse(w, log, resp)
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.dispatcher.health())
}

func writeResponse(w http.ResponseWriter, log pslog.Logger, resp *api.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn("rpc.write_failed", "error", err)
	}
}

// flattenHeaders keeps the first value of each header, which is what the
// credential carriers expect.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}
