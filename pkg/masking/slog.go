package masking

import (
	"context"
	"log/slog"
)

// LogHandler wraps an slog.Handler and masks string attribute values and
// the record message before they reach the sink.
type LogHandler struct {
	inner   slog.Handler
	service *Service
}

// NewLogHandler wraps inner with masking.
func NewLogHandler(inner slog.Handler, service *Service) *LogHandler {
	return &LogHandler{inner: inner, service: service}
}

// Enabled implements slog.Handler.
func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	masked := slog.NewRecord(record.Time, record.Level, h.service.Mask(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		masked.AddAttrs(h.maskAttr(attr))
		return true
	})
	return h.inner.Handle(ctx, masked)
}

// WithAttrs implements slog.Handler.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		maskedAttrs[i] = h.maskAttr(attr)
	}
	return &LogHandler{inner: h.inner.WithAttrs(maskedAttrs), service: h.service}
}

// WithGroup implements slog.Handler.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{inner: h.inner.WithGroup(name), service: h.service}
}

func (h *LogHandler) maskAttr(attr slog.Attr) slog.Attr {
	switch attr.Value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, h.service.Mask(attr.Value.String()))
	case slog.KindGroup:
		group := attr.Value.Group()
		maskedGroup := make([]any, 0, len(group))
		for _, member := range group {
			maskedGroup = append(maskedGroup, h.maskAttr(member))
		}
		return slog.Group(attr.Key, maskedGroup...)
	}
	return attr
}
