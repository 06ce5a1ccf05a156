// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package logging provides structured logging with OpenTelemetry trace
// context and redaction of credential-bearing attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// redactedValue replaces the value of any credential-bearing attribute.
const redactedValue = "[REDACTED]"

// sensitiveKeys are attribute names whose values never reach the log
// output. Login handlers pass raw credentials around, so redaction happens
// at the handler rather than at every call site.
var sensitiveKeys = map[string]struct{}{
	"password":    {},
	"secret":      {},
	"answer":      {},
	"reset_code":  {},
	"trust_token": {},
}

// gateHandler wraps a slog.Handler to stamp service identity, attach trace
// context, and redact sensitive attributes.
type gateHandler struct {
	handler slog.Handler
	service string
	version string
}

// Handle rebuilds the record with sensitive values redacted, then adds
// service identity and trace context.
func (h *gateHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redact(a))
		return true
	})

	out.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		out.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		out.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, out)
}

// Enabled returns true if the level is enabled.
func (h *gateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes, redacted the
// same way record attributes are.
func (h *gateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	safe := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		safe[i] = redact(a)
	}
	return &gateHandler{
		handler: h.handler.WithAttrs(safe),
		service: h.service,
		version: h.version,
	}
}

// WithGroup returns a new handler with the given group.
func (h *gateHandler) WithGroup(name string) slog.Handler {
	return &gateHandler{
		handler: h.handler.WithGroup(name),
		service: h.service,
		version: h.version,
	}
}

// redact replaces the value of a sensitive attribute.
func redact(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[a.Key]; ok {
		return slog.String(a.Key, redactedValue)
	}
	return a
}

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "json" if empty)
// If w is nil, writes to os.Stderr.
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var baseHandler slog.Handler
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	if format == "text" {
		baseHandler = slog.NewTextHandler(w, opts)
	} else {
		baseHandler = slog.NewJSONHandler(w, opts)
	}

	handler := &gateHandler{
		handler: baseHandler,
		service: service,
		version: version,
	}

	return slog.New(handler)
}

// SetDefault sets up and configures the default logger.
func SetDefault(service, version, format string) {
	logger := Setup(service, version, format, nil)
	slog.SetDefault(logger)
}
