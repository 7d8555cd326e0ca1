package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

type toolErrorEnvelope struct {
	ErrorCode  string `json:"error_code"`
	Detail     string `json:"detail,omitempty"`
	Retryable  bool   `json:"retryable"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

func withStructuredToolErrors[In, Out any](h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		res, out, err := h(ctx, req, input)
		if err == nil {
			return res, out, nil
		}
		var zero Out
		return nil, zero, toolError{Envelope: classifyToolError(err)}
	}
}

type toolError struct {
	Envelope toolErrorEnvelope
}

func (e toolError) Error() string {
	envelope := map[string]any{"error": e.Envelope}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return `{"error":{"error_code":"operation_failure","detail":"failed to encode error envelope"}}`
	}
	return string(encoded)
}

func classifyToolError(err error) toolErrorEnvelope {
	f := api.FailureFrom(err)
	env := toolErrorEnvelope{
		ErrorCode: string(f.Kind),
		Detail:    strings.TrimSpace(f.Message),
	}
	if f.Detail != "" {
		env.Detail = env.Detail + ": " + f.Detail
	}
	var apiErr *salesforce.APIError
	if errors.As(err, &apiErr) {
		env.HTTPStatus = apiErr.Status
		if code := strings.TrimSpace(apiErr.Code); code != "" {
			env.ErrorCode = code
		}
		env.Retryable = apiErr.Status == 429 || apiErr.Status >= 500
		return env
	}
	// Connection failures are worth retrying; credential and argument
	// failures are not.
	env.Retryable = f.Kind == api.KindConnectionError
	return env
}
