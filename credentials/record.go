// Package credentials implements the per-request credential layer: the
// encrypted token codec, the tiered source resolver, and the normalized
// credential record handed to the Salesforce session factory.
package credentials

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pablo-camprubi/salesforce-mcp/api"
)

// Record is the normalized Salesforce login material for exactly one
// call. It is produced by the Resolver, consumed once by the session
// factory, and never persisted or shared across requests.
type Record struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	SecurityToken string `json:"securityToken,omitempty"`
	InstanceURL   string `json:"instanceUrl,omitempty"`
	Sandbox       bool   `json:"sandbox,omitempty"`
}

// UnmarshalJSON accepts both key spellings seen on the plaintext
// carriers: camelCase (securityToken, instanceUrl) and snake_case
// (security_token, instance_url). Existing clients send the latter.
// Marshalling always emits camelCase. camelCase wins when a payload
// carries both spellings of a key.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire struct {
		Username           string `json:"username"`
		Password           string `json:"password"`
		SecurityToken      string `json:"securityToken"`
		SecurityTokenSnake string `json:"security_token"`
		InstanceURL        string `json:"instanceUrl"`
		InstanceURLSnake   string `json:"instance_url"`
		Sandbox            bool   `json:"sandbox"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Username = wire.Username
	r.Password = wire.Password
	r.SecurityToken = wire.SecurityToken
	if r.SecurityToken == "" {
		r.SecurityToken = wire.SecurityTokenSnake
	}
	r.InstanceURL = wire.InstanceURL
	if r.InstanceURL == "" {
		r.InstanceURL = wire.InstanceURLSnake
	}
	r.Sandbox = wire.Sandbox
	return nil
}

// Validate reports whether the record carries the mandatory fields. A
// resolved record is never partially populated.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return api.Failf(api.KindInvalidCredentials, "credential record missing username")
	}
	if r.Password == "" {
		return api.Failf(api.KindInvalidCredentials, "credential record missing password")
	}
	return nil
}

// Redacted returns a log-safe description of the record. Password and
// security token values never appear in it.
func (r Record) Redacted() string {
	token := "absent"
	if r.SecurityToken != "" {
		token = "set"
	}
	return fmt.Sprintf("username=%s security_token=%s sandbox=%t", r.Username, token, r.Sandbox)
}
