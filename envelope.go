package sfmcp

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pablo-camprubi/salesforce-mcp/api"
)

// decodeRequest reads one JSON-RPC request body. Bodies that are not
// valid JSON yield a -32700 parse error; structurally valid JSON that
// is not a request envelope yields a -32600 invalid-request error.
func decodeRequest(r io.Reader, maxBytes int64) (*api.Request, *api.Error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, &api.Error{Code: api.CodeParseError, Message: "read request body"}
	}
	if int64(len(body)) > maxBytes {
		return nil, &api.Error{Code: api.CodeProtocolError, Message: fmt.Sprintf("request body exceeds %d bytes", maxBytes)}
	}
	var req api.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &api.Error{Code: api.CodeParseError, Message: "parse error"}
	}
	if err := validateEnvelope(&req); err != nil {
		return &req, &api.Error{Code: api.CodeProtocolError, Message: err.Error()}
	}
	return &req, nil
}

func validateEnvelope(req *api.Request) error {
	if req.JSONRPC != api.Version {
		return fmt.Errorf("jsonrpc version must be %q", api.Version)
	}
	if strings.TrimSpace(req.Method) == "" {
		return fmt.Errorf("method is required")
	}
	switch req.ID.(type) {
	case nil, string, float64, json.Number:
	default:
		return fmt.Errorf("id must be a string, number, or null")
	}
	return nil
}

func wrapResult(id any, result any) *api.Response {
	return &api.Response{JSONRPC: api.Version, ID: id, Result: result}
}

func wrapError(id any, e *api.Error) *api.Response {
	return &api.Response{JSONRPC: api.Version, ID: id, Error: e}
}

// wrapFailure translates a dispatch error into a JSON-RPC error
// response, preserving the caller's request id verbatim.
func wrapFailure(id any, err error) *api.Response {
	f := api.FailureFrom(err)
	return wrapError(id, f.WireError())
}
