package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

func TestClassifyToolErrorKinds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		err       error
		wantCode  string
		retryable bool
	}{
		{
			name:      "invalid arguments",
			err:       api.Failf(api.KindInvalidArguments, "query is required"),
			wantCode:  "invalid_arguments",
			retryable: false,
		},
		{
			name:      "no credentials",
			err:       api.Failf(api.KindNoCredentialsFound, "no credential source present at any tier"),
			wantCode:  "no_credentials_found",
			retryable: false,
		},
		{
			name:      "connection error",
			err:       api.Failf(api.KindConnectionError, "salesforce login failed"),
			wantCode:  "connection_error",
			retryable: true,
		},
		{
			name:      "unclassified",
			err:       fmt.Errorf("socket closed"),
			wantCode:  "operation_failure",
			retryable: false,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := classifyToolError(tc.err)
			if env.ErrorCode != tc.wantCode {
				t.Fatalf("error_code = %q, want %q", env.ErrorCode, tc.wantCode)
			}
			if env.Retryable != tc.retryable {
				t.Fatalf("retryable = %v, want %v", env.Retryable, tc.retryable)
			}
		})
	}
}

func TestClassifyToolErrorAPIError(t *testing.T) {
	t.Parallel()
	apiErr := &salesforce.APIError{Status: 503, Code: "SERVER_UNAVAILABLE", Message: "try later"}
	env := classifyToolError(fmt.Errorf("soql query: %w", apiErr))
	if env.ErrorCode != "SERVER_UNAVAILABLE" {
		t.Fatalf("error_code = %q", env.ErrorCode)
	}
	if env.HTTPStatus != 503 || !env.Retryable {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestToolErrorRendersJSONEnvelope(t *testing.T) {
	t.Parallel()
	err := toolError{Envelope: toolErrorEnvelope{ErrorCode: "invalid_credentials", Detail: "credential source header_plaintext is invalid"}}
	var decoded map[string]map[string]any
	if jsonErr := json.Unmarshal([]byte(err.Error()), &decoded); jsonErr != nil {
		t.Fatalf("envelope is not json: %v", jsonErr)
	}
	if decoded["error"]["error_code"] != "invalid_credentials" {
		t.Fatalf("unexpected envelope: %s", err.Error())
	}
	if strings.Contains(err.Error(), "password") {
		t.Fatal("unexpected credential material in envelope")
	}
}
