package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// Sanitizer redacts credentials from log output. It matches the key
// formats of the providers taskweave talks to, generic secret-bearing
// assignments, and any literal secrets registered at construction
// (webhook HMAC secrets from the server config).
type Sanitizer struct {
	patterns []*regexp.Regexp
	literals []string
}

// NewSanitizer creates a sanitizer. Literals are redacted verbatim in
// addition to the built-in patterns.
func NewSanitizer(literals ...string) *Sanitizer {
	kept := make([]string, 0, len(literals))
	for _, l := range literals {
		if l != "" {
			kept = append(kept, l)
		}
	}
	return &Sanitizer{patterns: credentialPatterns, literals: kept}
}

var credentialPatterns = compilePatterns(
	// Provider API keys: OpenAI, Anthropic, Google AI.
	`sk-ant-[a-zA-Z0-9-]{40,}`,
	`sk-[A-Za-z0-9]{20,}`,
	`AIza[a-zA-Z0-9_-]{35}`,
	// GitHub tokens carried by webhook payloads.
	`gh[pous]_[A-Za-z0-9]{36}`,
	// Authorization headers and generic secret assignments.
	`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
	`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	`(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	`(?i)password["'\s:=]+[^\s"']{8,}`,
)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// Sanitize returns the input with every credential match replaced.
func (s *Sanitizer) Sanitize(input string) string {
	out := input
	for _, lit := range s.literals {
		out = strings.ReplaceAll(out, lit, redactedPlaceholder)
	}
	for _, pattern := range s.patterns {
		out = pattern.ReplaceAllString(out, redactedPlaceholder)
	}
	return out
}

// sanitizingHandler runs every record through the sanitizer before the
// wrapped handler formats it.
type sanitizingHandler struct {
	next      slog.Handler
	sanitizer *Sanitizer
}

func newSanitizingHandler(next slog.Handler, sanitizer *Sanitizer) *sanitizingHandler {
	return &sanitizingHandler{next: next, sanitizer: sanitizer}
}

func (h *sanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sanitizingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, h.sanitizer.Sanitize(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *sanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.sanitizeAttr(a)
	}
	return &sanitizingHandler{next: h.next.WithAttrs(clean), sanitizer: h.sanitizer}
}

func (h *sanitizingHandler) WithGroup(name string) slog.Handler {
	return &sanitizingHandler{next: h.next.WithGroup(name), sanitizer: h.sanitizer}
}

func (h *sanitizingHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.sanitizer.Sanitize(a.Value.String()))
	case slog.KindGroup:
		members := a.Value.Group()
		clean := make([]slog.Attr, len(members))
		for i, m := range members {
			clean[i] = h.sanitizeAttr(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	default:
		return a
	}
}
