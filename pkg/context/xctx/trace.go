package xctx

import "context"

// =============================================================================
// 日志属性 Key（下划线分隔，与 intake 文档字段名一致）
// =============================================================================

const (
	KeyTraceID       = "trace_id"
	KeySpanID        = "span_id"
	KeyTransactionID = "transaction_id"
	KeyTraceFlags    = "trace_flags"

	traceFieldCount = 4
)

const (
	keyTraceID       = contextKey("xctx:trace_id")
	keySpanID        = contextKey("xctx:span_id")
	keyTransactionID = contextKey("xctx:transaction_id")
	keyTraceFlags    = contextKey("xctx:trace_flags")
)

func withString(ctx context.Context, key contextKey, v string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, key, v), nil
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithTraceID 注入 trace ID。ctx 为 nil 时返回 ErrNilContext。
func WithTraceID(ctx context.Context, traceID string) (context.Context, error) {
	return withString(ctx, keyTraceID, traceID)
}

// TraceID 提取 trace ID，不存在返回空字符串。
func TraceID(ctx context.Context) string {
	return getString(ctx, keyTraceID)
}

// WithSpanID 注入当前事件 id。
func WithSpanID(ctx context.Context, spanID string) (context.Context, error) {
	return withString(ctx, keySpanID, spanID)
}

// SpanID 提取当前事件 id。
func SpanID(ctx context.Context) string {
	return getString(ctx, keySpanID)
}

// WithTransactionID 注入当前 transaction id。
func WithTransactionID(ctx context.Context, id string) (context.Context, error) {
	return withString(ctx, keyTransactionID, id)
}

// TransactionID 提取当前 transaction id。
func TransactionID(ctx context.Context) string {
	return getString(ctx, keyTransactionID)
}

// WithTraceFlags 注入 trace flags（2 位十六进制，如 "01"）。
func WithTraceFlags(ctx context.Context, flags string) (context.Context, error) {
	return withString(ctx, keyTraceFlags, flags)
}

// TraceFlags 提取 trace flags。
func TraceFlags(ctx context.Context) string {
	return getString(ctx, keyTraceFlags)
}

// RequireTraceID 提取 trace ID，缺失时返回 ErrMissingTraceID。
func RequireTraceID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	v := TraceID(ctx)
	if v == "" {
		return "", ErrMissingTraceID
	}
	return v, nil
}

// RequireSpanID 提取当前事件 id，缺失时返回 ErrMissingSpanID。
func RequireSpanID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	v := SpanID(ctx)
	if v == "" {
		return "", ErrMissingSpanID
	}
	return v, nil
}

// =============================================================================
// Trace 结构体（批量模式）
// =============================================================================

// Trace 追踪字段集合。
type Trace struct {
	TraceID       string
	SpanID        string
	TransactionID string
	TraceFlags    string
}

// GetTrace 批量提取，字段可能为空。
func GetTrace(ctx context.Context) Trace {
	return Trace{
		TraceID:       TraceID(ctx),
		SpanID:        SpanID(ctx),
		TransactionID: TransactionID(ctx),
		TraceFlags:    TraceFlags(ctx),
	}
}

// WithTrace 批量注入非空字段，已存在的值被覆盖，空字段保留父 context 的值。
func WithTrace(ctx context.Context, tr Trace) (context.Context, error) {
	return applyOptionalFields(ctx, []contextFieldSetter{
		{value: tr.TraceID, set: WithTraceID},
		{value: tr.SpanID, set: WithSpanID},
		{value: tr.TransactionID, set: WithTransactionID},
		{value: tr.TraceFlags, set: WithTraceFlags},
	})
}
