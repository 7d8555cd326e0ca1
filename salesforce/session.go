// Package salesforce is a request-scoped Salesforce client: SOAP login,
// REST and Tooling API calls, and Metadata API deploys. Sessions are
// built fresh for every call and are never pooled or cached; each
// session owns its own HTTP client and is discarded when the call
// completes.
package salesforce

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/credentials"
)

// Defaults for the login handshake.
const (
	DefaultLoginURL        = "https://login.salesforce.com"
	DefaultSandboxLoginURL = "https://test.salesforce.com"
	DefaultAPIVersion      = "58.0"
	DefaultTimeout         = 30 * time.Second
)

// Options configures session construction. The zero value uses the
// production login host, API v58.0, and a 30 second HTTP timeout.
type Options struct {
	LoginURL        string
	SandboxLoginURL string
	APIVersion      string
	Timeout         time.Duration
	Transport       http.RoundTripper
	Logger          pslog.Logger
}

func (o *Options) applyDefaults() {
	if strings.TrimSpace(o.LoginURL) == "" {
		o.LoginURL = DefaultLoginURL
	}
	if strings.TrimSpace(o.SandboxLoginURL) == "" {
		o.SandboxLoginURL = DefaultSandboxLoginURL
	}
	if strings.TrimSpace(o.APIVersion) == "" {
		o.APIVersion = DefaultAPIVersion
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = pslog.NoopLogger()
	}
}

// Session is a connection handle bound to exactly one credential record.
// It is owned exclusively by the call that created it and must be closed
// when that call completes.
type Session struct {
	instanceURL string
	sessionID   string
	apiVersion  string
	username    string
	httpClient  *http.Client
	logger      pslog.Logger
}

// Connect performs a single SOAP login attempt with rec and returns a
// fresh session. It never retries and never reuses a previous session,
// regardless of whether the same record was seen before. Login failures
// and unreachable hosts surface as ConnectionError; the password and
// security token never appear in the failure detail.
func Connect(ctx context.Context, rec credentials.Record, opts Options) (*Session, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	httpClient := &http.Client{
		Timeout:   opts.Timeout,
		Transport: otelhttp.NewTransport(transport),
	}

	loginHost := opts.LoginURL
	if rec.Sandbox {
		loginHost = opts.SandboxLoginURL
	}
	serverURL, sessionID, err := soapLogin(ctx, httpClient, loginHost, opts.APIVersion, rec)
	if err != nil {
		httpClient.CloseIdleConnections()
		return nil, err
	}

	instanceURL := strings.TrimRight(rec.InstanceURL, "/")
	if instanceURL == "" {
		instanceURL, err = instanceFromServerURL(serverURL)
		if err != nil {
			httpClient.CloseIdleConnections()
			return nil, api.Failf(api.KindConnectionError, "login response carried an unusable server URL")
		}
	}

	s := &Session{
		instanceURL: instanceURL,
		sessionID:   sessionID,
		apiVersion:  opts.APIVersion,
		username:    rec.Username,
		httpClient:  httpClient,
		logger:      opts.Logger,
	}
	s.logger.Debug("salesforce.session.open", "username", rec.Username, "instance", instanceURL)
	return s, nil
}

// Close releases the session's HTTP resources. The session must not be
// used afterwards.
func (s *Session) Close() {
	if s == nil || s.httpClient == nil {
		return
	}
	s.httpClient.CloseIdleConnections()
	s.logger.Debug("salesforce.session.close", "username", s.username)
}

// InstanceURL returns the org instance base URL for this session.
func (s *Session) InstanceURL() string { return s.instanceURL }

// Username returns the login the session was opened with.
func (s *Session) Username() string { return s.username }

// APIVersion returns the Salesforce API version the session targets.
func (s *Session) APIVersion() string { return s.apiVersion }

const loginEnvelopeFormat = `<?xml version="1.0" encoding="utf-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:urn="urn:partner.soap.sforce.com">
  <soapenv:Body>
    <urn:login>
      <urn:username>%s</urn:username>
      <urn:password>%s</urn:password>
    </urn:login>
  </soapenv:Body>
</soapenv:Envelope>`

type loginEnvelope struct {
	Body struct {
		Fault *struct {
			Code    string `xml:"faultcode"`
			Message string `xml:"faultstring"`
		} `xml:"Fault"`
		LoginResponse *struct {
			Result struct {
				ServerURL string `xml:"serverUrl"`
				SessionID string `xml:"sessionId"`
			} `xml:"result"`
		} `xml:"loginResponse"`
	} `xml:"Body"`
}

func soapLogin(ctx context.Context, client *http.Client, loginHost, apiVersion string, rec credentials.Record) (serverURL, sessionID string, err error) {
	endpoint := fmt.Sprintf("%s/services/Soap/u/%s", strings.TrimRight(loginHost, "/"), apiVersion)
	body := fmt.Sprintf(loginEnvelopeFormat, xmlEscape(rec.Username), xmlEscape(rec.Password+rec.SecurityToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", "login")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", &api.Failure{Kind: api.KindConnectionError, Message: "salesforce login endpoint unreachable", Detail: redactURLError(err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", api.Failf(api.KindConnectionError, "read login response failed")
	}

	var envelope loginEnvelope
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		return "", "", api.Failf(api.KindConnectionError, "login response was not a SOAP envelope (status %d)", resp.StatusCode)
	}
	if envelope.Body.Fault != nil {
		return "", "", &api.Failure{
			Kind:    api.KindConnectionError,
			Message: "salesforce rejected the login",
			Detail:  fmt.Sprintf("%s: %s", envelope.Body.Fault.Code, envelope.Body.Fault.Message),
		}
	}
	if envelope.Body.LoginResponse == nil || envelope.Body.LoginResponse.Result.SessionID == "" {
		return "", "", api.Failf(api.KindConnectionError, "login response missing session id (status %d)", resp.StatusCode)
	}
	result := envelope.Body.LoginResponse.Result
	return result.ServerURL, result.SessionID, nil
}

func instanceFromServerURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("server url %q missing scheme or host", serverURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// redactURLError strips query strings from transport errors so no
// request parameter ever reaches a failure detail.
func redactURLError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Sprintf("%s %s: %v", urlErr.Op, stripQuery(urlErr.URL), urlErr.Err)
	}
	return err.Error()
}

func stripQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
