// Package telemetry builds the tracer provider for refresh-cycle tracing.
// Finished spans are written to slog rather than shipped to a collector.
package telemetry

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider hands out tracers. The zero value and a disabled provider yield
// no-op tracers.
type Provider struct {
	sdk *sdktrace.TracerProvider
}

// Setup returns a provider that logs every finished span to logger when
// enabled. A nil logger uses slog.Default.
func Setup(enabled bool, logger *slog.Logger) *Provider {
	if !enabled {
		return &Provider{}
	}
	proc := NewSlogProcessor(logger)
	return &Provider{sdk: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(proc))}
}

func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.sdk == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.sdk.Tracer(name)
}

func (p *Provider) Enabled() bool { return p != nil && p.sdk != nil }

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// SlogProcessor logs finished spans. Failed spans log at Warn, the rest at
// Debug.
type SlogProcessor struct {
	log *slog.Logger
}

var _ sdktrace.SpanProcessor = (*SlogProcessor)(nil)

func NewSlogProcessor(logger *slog.Logger) *SlogProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogProcessor{log: logger.With("component", "trace")}
}

func (p *SlogProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *SlogProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	attrs := []any{
		"span", span.Name(),
		"trace_id", span.SpanContext().TraceID().String(),
		"duration", span.EndTime().Sub(span.StartTime()),
	}
	if span.Parent().IsValid() {
		attrs = append(attrs, "parent", span.Parent().SpanID().String())
	}
	for _, kv := range span.Attributes() {
		attrs = append(attrs, string(kv.Key), attrValue(kv.Value))
	}

	status := span.Status()
	if status.Code == codes.Error {
		attrs = append(attrs, "err", strings.TrimSpace(status.Description))
		p.log.Warn("span failed", attrs...)
		return
	}
	p.log.Debug("span", attrs...)
}

func (p *SlogProcessor) Shutdown(context.Context) error   { return nil }
func (p *SlogProcessor) ForceFlush(context.Context) error { return nil }

func attrValue(v attribute.Value) any {
	switch v.Type() {
	case attribute.BOOL:
		return v.AsBool()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.STRING:
		return v.AsString()
	default:
		return v.Emit()
	}
}
