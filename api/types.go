// Package api defines the JSON-RPC wire types and the failure taxonomy
// shared by the salesforce-mcp server, the dispatcher, and clients.
package api

import "encoding/json"

// Version is the JSON-RPC protocol marker every request and response carries.
const Version = "2.0"

// ProtocolVersion is the tool-calling protocol revision reported by initialize.
const ProtocolVersion = "2024-11-05"

// Request is a single inbound JSON-RPC 2.0 call. ID is nil for
// notifications and is echoed back verbatim on the response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the outbound JSON-RPC 2.0 envelope. Exactly one of Result
// or Error is populated.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the JSON-RPC error object carried on failed responses.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// CallParams is the params payload of a tools/call request.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolDescriptor describes one registered operation in a tools/list response.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolListResult is the result payload of tools/list.
type ToolListResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// Content is one content item inside a tools/call result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result payload of tools/call.
type CallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult wraps a plain text payload as a tools/call result.
func TextResult(text string) CallResult {
	return CallResult{Content: []Content{{Type: "text", Text: text}}}
}

// InitializeResult is the result payload of initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ServerInfo identifies the server implementation to clients.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HealthResult is the result payload of health/check.
type HealthResult struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	Version    string `json:"version"`
	MemoryRSS  uint64 `json:"memoryRssBytes,omitempty"`
	Goroutines int    `json:"goroutines,omitempty"`
}
