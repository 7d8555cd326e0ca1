package sfmcp

import (
	"strings"
	"testing"

	"github.com/pablo-camprubi/salesforce-mcp/api"
)

func TestDecodeRequestParsesEnvelope(t *testing.T) {
	t.Parallel()
	body := `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`
	req, rpcErr := decodeRequest(strings.NewReader(body), DefaultMaxBodyBytes)
	if rpcErr != nil {
		t.Fatalf("decode: %+v", rpcErr)
	}
	if req.Method != "tools/list" {
		t.Fatalf("method = %q", req.Method)
	}
	if id, ok := req.ID.(float64); !ok || id != 7 {
		t.Fatalf("id = %#v", req.ID)
	}
}

func TestDecodeRequestParseError(t *testing.T) {
	t.Parallel()
	req, rpcErr := decodeRequest(strings.NewReader(`{"jsonrpc":`), DefaultMaxBodyBytes)
	if rpcErr == nil {
		t.Fatal("expected parse error")
	}
	if rpcErr.Code != api.CodeParseError {
		t.Fatalf("code = %d, want %d", rpcErr.Code, api.CodeParseError)
	}
	if req != nil {
		t.Fatal("parse failures should not yield a request")
	}
}

func TestDecodeRequestInvalidEnvelope(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
	}{
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"initialize"}`},
		{"missing method", `{"jsonrpc":"2.0","id":1}`},
		{"object id", `{"jsonrpc":"2.0","id":{"a":1},"method":"initialize"}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, rpcErr := decodeRequest(strings.NewReader(tc.body), DefaultMaxBodyBytes)
			if rpcErr == nil {
				t.Fatal("expected envelope error")
			}
			if rpcErr.Code != api.CodeProtocolError {
				t.Fatalf("code = %d, want %d", rpcErr.Code, api.CodeProtocolError)
			}
		})
	}
}

func TestDecodeRequestBodyTooLarge(t *testing.T) {
	t.Parallel()
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"pad":"` + strings.Repeat("x", 256) + `"}}`
	_, rpcErr := decodeRequest(strings.NewReader(body), 64)
	if rpcErr == nil || rpcErr.Code != api.CodeProtocolError {
		t.Fatalf("expected oversized body rejection, got %+v", rpcErr)
	}
}

func TestWrapFailurePreservesNullID(t *testing.T) {
	t.Parallel()
	resp := wrapFailure(nil, api.Failf(api.KindNoCredentialsFound, "nothing present"))
	if resp.ID != nil {
		t.Fatalf("id = %#v, want nil", resp.ID)
	}
	if resp.Error == nil || resp.Error.Code != api.CodeNoCredentials {
		t.Fatalf("error = %+v", resp.Error)
	}
}
