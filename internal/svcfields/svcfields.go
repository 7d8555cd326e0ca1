// Package svcfields centralizes the structured log fields shared by the
// RPC and MCP surfaces so subsystem names stay consistent across them.
package svcfields

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey is the field name under which subsystem paths are logged.
const SubsystemKey = pslog.TrustedString("sys")

// Subsystem joins the given path fragments with dots, dropping any that
// are empty after trimming.
func Subsystem(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	joined := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part == "" {
			continue
		}
		joined = append(joined, part)
	}
	if len(joined) == 0 {
		return ""
	}
	return strings.Join(joined, ".")
}

// WithSubsystem returns a logger that tags every entry with the given
// subsystem path. A nil logger yields a noop logger so callers need no
// guard of their own.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}
