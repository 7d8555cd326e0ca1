package credentials

import (
	"encoding/json"
	"fmt"
	"net/textproto"

	"pkt.systems/pslog"

	"github.com/pablo-camprubi/salesforce-mcp/api"
)

// Reserved credential carriers. The argument keys are stripped from the
// argument bag before any operation sees it; the header names are the
// transport-level equivalents.
const (
	ArgEncryptedKey = "_sf_encrypted_credentials"
	ArgPlaintextKey = "_sf_credentials"

	HeaderEncrypted = "X-Salesforce-Encrypted-Credentials"
	HeaderPlaintext = "X-Salesforce-Credentials"
)

// Tier names one of the five fixed-precedence credential sources.
type Tier string

const (
	TierArgumentEncrypted Tier = "argument_encrypted"
	TierArgumentPlaintext Tier = "argument_plaintext"
	TierHeaderEncrypted   Tier = "header_encrypted"
	TierHeaderPlaintext   Tier = "header_plaintext"
	TierFallback          Tier = "process_fallback"
)

// Resolution is the outcome of a successful resolve: the normalized
// record plus the tier that produced it.
type Resolution struct {
	Record Record
	Tier   Tier
}

// Resolver picks exactly one credential source for an inbound call.
// Precedence is fixed: encrypted argument, plaintext argument, encrypted
// header, plaintext header, process-wide fallback. A malformed source at
// a higher tier is a terminal failure; resolution never falls through
// past it, so a corrupted stronger carrier can not force a weaker one.
type Resolver struct {
	codec    *Codec
	fallback *Record
	logger   pslog.Logger
}

// NewResolver constructs a resolver. codec may be nil when no key bundle
// is configured (encrypted tiers then fail as invalid when present).
// fallback may be nil when the deployment has no process-wide
// credentials.
func NewResolver(codec *Codec, fallback *Record, logger pslog.Logger) *Resolver {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Resolver{codec: codec, fallback: fallback, logger: logger}
}

// tierValue is one tier's lookup outcome: absent, present-and-valid, or
// present-and-invalid. Only absent continues to the next tier.
type tierValue struct {
	present bool
	record  Record
	err     error
}

// Resolve inspects the call's credential carriers in precedence order and
// returns the single winning record. The reserved argument keys are
// removed from args before any tier is evaluated; the removal is
// idempotent, so resolving an already-stripped bag changes nothing.
func (r *Resolver) Resolve(args map[string]any, headers map[string]string) (Resolution, error) {
	argEncrypted, argEncryptedPresent := args[ArgEncryptedKey]
	argPlain, argPlainPresent := args[ArgPlaintextKey]
	StripReserved(args)

	tiers := []struct {
		tier Tier
		eval func() tierValue
	}{
		{TierArgumentEncrypted, func() tierValue {
			return r.evalEncryptedArg(argEncrypted, argEncryptedPresent)
		}},
		{TierArgumentPlaintext, func() tierValue {
			return r.evalPlaintextArg(argPlain, argPlainPresent)
		}},
		{TierHeaderEncrypted, func() tierValue {
			return r.evalEncryptedHeader(headerValue(headers, HeaderEncrypted))
		}},
		{TierHeaderPlaintext, func() tierValue {
			return r.evalPlaintextHeader(headerValue(headers, HeaderPlaintext))
		}},
		{TierFallback, r.evalFallback},
	}

	for _, t := range tiers {
		v := t.eval()
		if !v.present {
			continue
		}
		if v.err != nil {
			return Resolution{}, &api.Failure{
				Kind:    api.KindInvalidCredentials,
				Message: fmt.Sprintf("credential source %s is invalid", t.tier),
				Detail:  api.FailureFrom(v.err).Message,
			}
		}
		if err := v.record.Validate(); err != nil {
			return Resolution{}, &api.Failure{
				Kind:    api.KindInvalidCredentials,
				Message: fmt.Sprintf("credential source %s is incomplete", t.tier),
				Detail:  api.FailureFrom(err).Message,
			}
		}
		r.logger.Debug("credentials.resolved", "tier", string(t.tier), "username", v.record.Username)
		return Resolution{Record: v.record, Tier: t.tier}, nil
	}
	return Resolution{}, api.Failf(api.KindNoCredentialsFound, "no credential source present at any tier")
}

// StripReserved removes the reserved credential keys from an argument
// bag. Calling it twice yields the same bag as calling it once.
func StripReserved(args map[string]any) {
	if args == nil {
		return
	}
	delete(args, ArgEncryptedKey)
	delete(args, ArgPlaintextKey)
}

func (r *Resolver) evalEncryptedArg(value any, present bool) tierValue {
	if !present {
		return tierValue{}
	}
	token, ok := value.(string)
	if !ok || token == "" {
		return tierValue{present: true, err: fmt.Errorf("encrypted credential argument must be a non-empty string")}
	}
	return r.decodeToken(token)
}

func (r *Resolver) evalPlaintextArg(value any, present bool) tierValue {
	if !present {
		return tierValue{}
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return tierValue{present: true, err: fmt.Errorf("plaintext credential argument must be an object")}
	}
	rec, err := recordFromMap(obj)
	if err != nil {
		return tierValue{present: true, err: err}
	}
	return tierValue{present: true, record: rec}
}

func (r *Resolver) evalEncryptedHeader(token string) tierValue {
	if token == "" {
		return tierValue{}
	}
	return r.decodeToken(token)
}

func (r *Resolver) evalPlaintextHeader(raw string) tierValue {
	if raw == "" {
		return tierValue{}
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return tierValue{present: true, err: fmt.Errorf("plaintext credential header is not valid JSON")}
	}
	return tierValue{present: true, record: rec}
}

func (r *Resolver) evalFallback() tierValue {
	if r.fallback == nil || r.fallback.Username == "" {
		return tierValue{}
	}
	return tierValue{present: true, record: *r.fallback}
}

func (r *Resolver) decodeToken(token string) tierValue {
	if r.codec == nil {
		return tierValue{present: true, err: fmt.Errorf("no credential key bundle configured for encrypted tokens")}
	}
	rec, err := r.codec.Decode(token)
	if err != nil {
		return tierValue{present: true, err: err}
	}
	return tierValue{present: true, record: rec}
}

func recordFromMap(obj map[string]any) (Record, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return Record{}, fmt.Errorf("credential object not serializable")
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("credential object has wrong field types")
	}
	return rec, nil
}

func headerValue(headers map[string]string, name string) string {
	if headers == nil {
		return ""
	}
	if v, ok := headers[name]; ok {
		return v
	}
	canonical := textproto.CanonicalMIMEHeaderKey(name)
	for k, v := range headers {
		if textproto.CanonicalMIMEHeaderKey(k) == canonical {
			return v
		}
	}
	return ""
}
