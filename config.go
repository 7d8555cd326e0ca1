package sfmcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pablo-camprubi/salesforce-mcp/credentials"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

// Config controls server runtime behavior.
type Config struct {
	// Listen is the host:port the JSON-RPC endpoint binds to.
	Listen string
	// RPCPath is the HTTP path serving JSON-RPC requests.
	RPCPath string
	// KeyBundlePath points at the PEM key bundle used to decrypt
	// credential tokens. Empty disables the encrypted carriers.
	KeyBundlePath string

	// Process-level fallback credentials, used only when a request
	// carries no credentials of its own.
	FallbackUsername      string
	FallbackPassword      string
	FallbackSecurityToken string
	FallbackInstanceURL   string
	FallbackSandbox       bool

	LoginURL        string
	SandboxLoginURL string
	APIVersion      string
	HTTPTimeout     time.Duration

	// MaxBodyBytes caps the size of a single JSON-RPC request body.
	MaxBodyBytes int64

	MetricsListen string
	PprofListen   string
	OTLPEndpoint  string
}

const (
	// DefaultListen is the default JSON-RPC bind address.
	DefaultListen = "127.0.0.1:8000"
	// DefaultRPCPath is the default JSON-RPC endpoint path.
	DefaultRPCPath = "/mcp"
	// DefaultMaxBodyBytes caps request bodies at 1 MiB.
	DefaultMaxBodyBytes = 1 << 20
)

// Validate applies defaults and rejects unusable configurations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	c.RPCPath = cleanHTTPPath(c.RPCPath)
	if strings.TrimSpace(c.LoginURL) == "" {
		c.LoginURL = salesforce.DefaultLoginURL
	}
	if strings.TrimSpace(c.SandboxLoginURL) == "" {
		c.SandboxLoginURL = salesforce.DefaultSandboxLoginURL
	}
	if strings.TrimSpace(c.APIVersion) == "" {
		c.APIVersion = salesforce.DefaultAPIVersion
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = salesforce.DefaultTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.FallbackUsername == "" && c.FallbackPassword != "" {
		return fmt.Errorf("fallback password set without fallback username")
	}
	return nil
}

// FallbackRecord returns the process-level credential record, or nil
// when no fallback is configured.
func (c Config) FallbackRecord() *credentials.Record {
	if strings.TrimSpace(c.FallbackUsername) == "" {
		return nil
	}
	return &credentials.Record{
		Username:      c.FallbackUsername,
		Password:      c.FallbackPassword,
		SecurityToken: c.FallbackSecurityToken,
		InstanceURL:   c.FallbackInstanceURL,
		Sandbox:       c.FallbackSandbox,
	}
}

// SessionOptions maps the config onto per-request connection options.
func (c Config) SessionOptions() salesforce.Options {
	return salesforce.Options{
		LoginURL:        c.LoginURL,
		SandboxLoginURL: c.SandboxLoginURL,
		APIVersion:      c.APIVersion,
		Timeout:         c.HTTPTimeout,
	}
}

func cleanHTTPPath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return DefaultRPCPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if trimmed := strings.TrimRight(p, "/"); trimmed != "" {
		p = trimmed
	}
	return p
}
