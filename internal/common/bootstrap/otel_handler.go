package bootstrap

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// OTelHandler: 레코드에 현재 span 의 trace_id/span_id 를 붙이는 slog.Handler 래퍼.
// 샘플링되지 않은 span 은 trace_sampled=false 로 표시해 로그만으로도 누락된 trace 를 구분한다.
type OTelHandler struct {
	inner slog.Handler
}

// NewOTelHandler: inner 를 감싼 OTelHandler 를 만든다.
func NewOTelHandler(inner slog.Handler) *OTelHandler {
	return &OTelHandler{inner: inner}
}

func (h *OTelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *OTelHandler) Handle(ctx context.Context, record slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		attrs := []slog.Attr{
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		}
		if !sc.IsSampled() {
			attrs = append(attrs, slog.Bool("trace_sampled", false))
		}
		record.AddAttrs(attrs...)
	}
	//nolint:wrapcheck // slog.Handler 구현
	return h.inner.Handle(ctx, record)
}

func (h *OTelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewOTelHandler(h.inner.WithAttrs(attrs))
}

func (h *OTelHandler) WithGroup(name string) slog.Handler {
	return NewOTelHandler(h.inner.WithGroup(name))
}
