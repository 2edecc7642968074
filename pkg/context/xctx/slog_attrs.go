package xctx

import (
	"context"
	"log/slog"
)

// AppendTraceAttrs 将 context 中的非空追踪字段追加到 attrs。
// 传入预分配切片可避免热路径分配。
func AppendTraceAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	if v := TraceID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTraceID, v))
	}
	if v := SpanID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeySpanID, v))
	}
	if v := TransactionID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTransactionID, v))
	}
	if v := TraceFlags(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTraceFlags, v))
	}
	return attrs
}

// TraceAttrs 提取追踪字段为 slog.Attr，全部为空时返回 nil。
func TraceAttrs(ctx context.Context) []slog.Attr {
	attrs := AppendTraceAttrs(make([]slog.Attr, 0, traceFieldCount), ctx)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
