package xlog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/omeyang/xapm/pkg/context/xctx"
)

// ErrNilHandler NewEnrichHandler 的 base 为 nil。
var ErrNilHandler = errors.New("xlog: base handler is nil")

// EnrichHandler 在 Handle 时从 context 注入 trace_id、span_id、transaction_id、trace_flags。
// context 缺少字段不影响日志记录。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 包装 base handler。
func NewEnrichHandler(base slog.Handler) (*EnrichHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &EnrichHandler{base: base}, nil
}

// Enabled 委托给底层 handler
func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

const maxEnrichAttrs = 4

// Handle 按 slog 契约先 Clone 再追加属性。
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf [maxEnrichAttrs]slog.Attr
	attrs := xctx.AppendTraceAttrs(buf[:0], ctx)
	if len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.base.Handle(ctx, r)
}

// WithAttrs 实现 slog.Handler
func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

// WithGroup 实现 slog.Handler
func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
