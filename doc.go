// Package sfmcp serves Salesforce tooling operations over JSON-RPC 2.0.
//
// Every tools/call carries its own Salesforce credentials, resolved from
// a fixed precedence of carriers (encrypted argument, plaintext argument,
// encrypted header, plaintext header, process fallback) and exchanged for
// a fresh Salesforce session scoped to that single request. Sessions are
// never pooled or shared between calls, so concurrent callers with
// different credentials stay fully isolated.
package sfmcp
