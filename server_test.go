package sfmcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/credentials"
)

// newTestServer stands up the full HTTP stack against a fake org and
// returns the RPC endpoint URL plus the codec used to mint tokens.
func newTestServer(t *testing.T, org *fakeOrg, mutate func(*Config)) (string, *credentials.Codec) {
	t.Helper()
	bundlePath := filepath.Join(t.TempDir(), "credentials.pem")
	if err := credentials.GenerateBundle(bundlePath, false); err != nil {
		t.Fatalf("generate bundle: %v", err)
	}
	cfg := Config{
		LoginURL:        org.srv.URL,
		SandboxLoginURL: org.srv.URL,
		KeyBundlePath:   bundlePath,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(NewServerRequest{Config: cfg})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	impl, ok := srv.(*server)
	if !ok {
		t.Fatalf("unexpected server type %T", srv)
	}
	ts := httptest.NewServer(impl.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts.URL + impl.cfg.RPCPath, credentials.NewCodec(bundlePath)
}

func postRPC(t *testing.T, endpoint, body string, headers map[string]string) (*http.Response, api.Response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { httpResp.Body.Close() })
	var decoded api.Response
	if httpResp.StatusCode != http.StatusAccepted {
		if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return httpResp, decoded
}

func soqlCallBody(t *testing.T, id any, args map[string]any) string {
	t.Helper()
	full := map[string]any{"query": "SELECT Name FROM Account"}
	for key, value := range args {
		full[key] = value
	}
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": api.Version,
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": "run_soql_query", "arguments": full},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(payload)
}

// registerEchoQuery answers SOQL queries with the caller's username,
// derived from the bearer session the fake org minted at login.
func registerEchoQuery(org *fakeOrg) {
	org.mux.HandleFunc("/services/data/v58.0/queryAll", func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimPrefix(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "), "session-for-")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"totalSize":1,"done":true,"records":[{"attributes":{"type":"Account"},"Owner":%q}]}`, user)
	})
}

func TestServerEndToEndEncryptedArgument(t *testing.T) {
	t.Parallel()
	org := newFakeOrg(t)
	registerEchoQuery(org)
	endpoint, codec := newTestServer(t, org, nil)

	token, err := codec.Encode(credentials.Record{Username: "alice@example.com", Password: "pw-a"})
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	httpResp, resp := postRPC(t, endpoint, soqlCallBody(t, "e2e-1", map[string]any{
		credentials.ArgEncryptedKey: token,
	}), nil)
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", httpResp.StatusCode)
	}
	if resp.Error != nil {
		t.Fatalf("call failed: %+v", resp.Error)
	}
	if resp.ID != "e2e-1" {
		t.Fatalf("id = %#v", resp.ID)
	}
	payload, _ := json.Marshal(resp.Result)
	if !bytes.Contains(payload, []byte("alice@example.com")) {
		t.Fatalf("expected alice's session, got %s", payload)
	}
}

func TestServerEndToEndHeaderTier(t *testing.T) {
	t.Parallel()
	org := newFakeOrg(t)
	registerEchoQuery(org)
	endpoint, _ := newTestServer(t, org, nil)

	creds, _ := json.Marshal(map[string]any{"username": "carol@example.com", "password": "pw-c"})
	_, resp := postRPC(t, endpoint, soqlCallBody(t, float64(2), nil), map[string]string{
		credentials.HeaderPlaintext: string(creds),
	})
	if resp.Error != nil {
		t.Fatalf("call failed: %+v", resp.Error)
	}
	payload, _ := json.Marshal(resp.Result)
	if !bytes.Contains(payload, []byte("carol@example.com")) {
		t.Fatalf("expected carol's session, got %s", payload)
	}
}

func TestServerConcurrentCallersStayIsolated(t *testing.T) {
	t.Parallel()
	org := newFakeOrg(t)
	registerEchoQuery(org)
	endpoint, codec := newTestServer(t, org, nil)

	users := []string{"alice@example.com", "bob@example.com"}
	tokens := make(map[string]string, len(users))
	for _, user := range users {
		token, err := codec.Encode(credentials.Record{Username: user, Password: "pw-" + user})
		if err != nil {
			t.Fatalf("encode token for %s: %v", user, err)
		}
		tokens[user] = token
	}

	const rounds = 8
	var wg sync.WaitGroup
	errCh := make(chan error, len(users)*rounds)
	for _, user := range users {
		for i := 0; i < rounds; i++ {
			wg.Add(1)
			go func(user string, i int) {
				defer wg.Done()
				body := soqlCallBody(t, fmt.Sprintf("%s-%d", user, i), map[string]any{
					credentials.ArgEncryptedKey: tokens[user],
				})
				req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(body))
				if err != nil {
					errCh <- err
					return
				}
				httpResp, err := http.DefaultClient.Do(req)
				if err != nil {
					errCh <- err
					return
				}
				defer httpResp.Body.Close()
				var resp api.Response
				if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
					errCh <- err
					return
				}
				if resp.Error != nil {
					errCh <- fmt.Errorf("%s: %+v", user, resp.Error)
					return
				}
				payload, _ := json.Marshal(resp.Result)
				if !bytes.Contains(payload, []byte(user)) {
					errCh <- fmt.Errorf("caller %s received foreign session: %s", user, payload)
				}
			}(user, i)
		}
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestServerParseErrorNullID(t *testing.T) {
	t.Parallel()
	endpoint, _ := newTestServer(t, newFakeOrg(t), nil)
	httpResp, err := http.Post(endpoint, "application/json", strings.NewReader(`{"jsonrpc":`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer httpResp.Body.Close()
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(httpResp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["id"]) != "null" {
		t.Fatalf("id = %s, want null", raw["id"])
	}
	var rpcErr api.Error
	if err := json.Unmarshal(raw["error"], &rpcErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if rpcErr.Code != api.CodeParseError {
		t.Fatalf("code = %d", rpcErr.Code)
	}
}

func TestServerRejectsNonPost(t *testing.T) {
	t.Parallel()
	endpoint, _ := newTestServer(t, newFakeOrg(t), nil)
	httpResp, err := http.Get(endpoint)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", httpResp.StatusCode)
	}
}

func TestServerNotificationReturns202(t *testing.T) {
	t.Parallel()
	endpoint, _ := newTestServer(t, newFakeOrg(t), nil)
	httpResp, resp := postRPC(t, endpoint, `{"jsonrpc":"2.0","id":null,"method":"notifications/initialized"}`, nil)
	if httpResp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, resp = %+v", httpResp.StatusCode, resp)
	}
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()
	endpoint, _ := newTestServer(t, newFakeOrg(t), nil)
	base := strings.TrimSuffix(endpoint, DefaultRPCPath)
	httpResp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer httpResp.Body.Close()
	var health api.HealthResult
	if err := json.NewDecoder(httpResp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "healthy" {
		t.Fatalf("status = %q", health.Status)
	}
}

func TestServerTokenFromForeignKeyIsTerminal(t *testing.T) {
	t.Parallel()
	org := newFakeOrg(t)
	registerEchoQuery(org)
	endpoint, _ := newTestServer(t, org, func(cfg *Config) {
		cfg.FallbackUsername = "ops@example.com"
		cfg.FallbackPassword = "pw-ops"
	})

	otherBundle := filepath.Join(t.TempDir(), "other.pem")
	if err := credentials.GenerateBundle(otherBundle, false); err != nil {
		t.Fatalf("generate bundle: %v", err)
	}
	token, err := credentials.NewCodec(otherBundle).Encode(credentials.Record{
		Username: "mallory@example.com",
		Password: "pw-m",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// A token minted under a different key must fail the call, not fall
	// through to the configured fallback credentials.
	_, resp := postRPC(t, endpoint, soqlCallBody(t, float64(9), map[string]any{
		credentials.ArgEncryptedKey: token,
	}), nil)
	if resp.Error == nil || resp.Error.Code != api.CodeInvalidCreds {
		t.Fatalf("expected invalid credentials, got %+v", resp.Error)
	}
}
