package tools

import (
	"strings"

	"github.com/pablo-camprubi/salesforce-mcp/api"
)

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

func objectArg(op, key string, args map[string]any) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, api.Failf(api.KindInvalidArguments, "%s: missing required argument %q", op, key)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, api.Failf(api.KindInvalidArguments, "%s: argument %q must be an object", op, key)
	}
	return obj, nil
}

func stringSliceArg(op, key string, args map[string]any) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, api.Failf(api.KindInvalidArguments, "%s: argument %q must be an array of strings", op, key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, api.Failf(api.KindInvalidArguments, "%s: argument %q must be an array of strings", op, key)
		}
		out = append(out, s)
	}
	return out, nil
}

func objectSliceArg(op, key string, args map[string]any) ([]map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, api.Failf(api.KindInvalidArguments, "%s: argument %q must be an array of objects", op, key)
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, api.Failf(api.KindInvalidArguments, "%s: argument %q must be an array of objects", op, key)
		}
		out = append(out, obj)
	}
	return out, nil
}

func isAPIName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}
