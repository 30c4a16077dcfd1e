// Package logging builds the engine's loggers with automatic redaction of
// secret-bearing fields.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder for redacted sensitive data.
const RedactedValue = "[REDACTED]"

// redactionPolicy decides which attribute keys and string values must not
// reach a log line.
type redactionPolicy struct {
	// exact holds names matched verbatim, so public identifiers such as
	// key_id survive while a bare "key" does not.
	exact map[string]bool
	// fragments are matched as substrings of the lowercased key.
	fragments []string
}

func defaultPolicy() redactionPolicy {
	return redactionPolicy{
		exact: map[string]bool{
			"key":  true,
			"auth": true,
		},
		fragments: []string{
			"password",
			"secret",
			"token",
			"session",
			"nonce",
			"private_key",
			"privatekey",
			"signing_key",
			"jwk",
			"credential",
			"authorization",
			"bearer",
			"envelope",
		},
	}
}

func (p redactionPolicy) sensitiveKey(name string) bool {
	lower := strings.ToLower(name)
	if p.exact[lower] {
		return true
	}
	for _, fragment := range p.fragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// sensitiveValue reports whether a string value visibly carries key
// material regardless of the attribute it travels under.
func (p redactionPolicy) sensitiveValue(value string) bool {
	if strings.Contains(value, "BEGIN PRIVATE KEY") || strings.Contains(value, "BEGIN EC PRIVATE KEY") {
		return true
	}
	// A JWK with the private "d" parameter must never reach a log.
	return strings.Contains(value, `"kty"`) && strings.Contains(value, `"d"`)
}

// RedactorHandler wraps an slog.Handler and redacts attributes that may
// carry challenge material, key material, or session credentials.
type RedactorHandler struct {
	handler slog.Handler
	policy  redactionPolicy
}

// NewRedactorHandler creates a handler that redacts sensitive fields.
func NewRedactorHandler(handler slog.Handler) *RedactorHandler {
	return &RedactorHandler{handler: handler, policy: defaultPolicy()}
}

// Enabled implements slog.Handler.
func (h *RedactorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler, rewriting the record's attributes before
// the wrapped handler sees them.
func (h *RedactorHandler) Handle(ctx context.Context, record slog.Record) error {
	scrubbed := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		scrubbed.AddAttrs(h.scrub(attr))
		return true
	})

	if err := h.handler.Handle(ctx, scrubbed); err != nil {
		return fmt.Errorf("redactor handle failed: %w", err)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *RedactorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		scrubbed[i] = h.scrub(attr)
	}
	return &RedactorHandler{handler: h.handler.WithAttrs(scrubbed), policy: h.policy}
}

// WithGroup implements slog.Handler.
func (h *RedactorHandler) WithGroup(name string) slog.Handler {
	return &RedactorHandler{handler: h.handler.WithGroup(name), policy: h.policy}
}

// scrub redacts a single attribute, descending into groups.
func (h *RedactorHandler) scrub(attr slog.Attr) slog.Attr {
	if h.policy.sensitiveKey(attr.Key) {
		return slog.String(attr.Key, RedactedValue)
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		members := attr.Value.Group()
		scrubbed := make([]slog.Attr, len(members))
		for i, member := range members {
			scrubbed[i] = h.scrub(member)
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(scrubbed...)}
	case slog.KindString:
		if h.policy.sensitiveValue(attr.Value.String()) {
			return slog.String(attr.Key, RedactedValue)
		}
	}
	return attr
}
