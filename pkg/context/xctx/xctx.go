// Package xctx 在 context.Context 中携带当前工作单元的追踪标识。
//
// xctx 是底层存储层：xapm 在创建 Transaction/Span 时写入，
// xlog 的 EnrichHandler 在输出日志时读取，使每条日志都能关联到链路。
//
// 支持的字段：
//   - trace_id: W3C trace-id（32 位十六进制）
//   - span_id: 当前事件 id（transaction 或 span，16 位十六进制）
//   - transaction_id: 当前根 transaction id
//   - trace_flags: W3C trace-flags（"01" 表示已采样）
package xctx

import (
	"context"
	"errors"
)

// contextKey 包私有类型，避免与其他包的 key 冲突。
type contextKey string

var (
	// ErrNilContext 传入的 context 为 nil。
	ErrNilContext = errors.New("xctx: nil context")

	// ErrMissingTraceID trace_id 缺失
	ErrMissingTraceID = errors.New("xctx: missing trace_id")

	// ErrMissingSpanID span_id 缺失
	ErrMissingSpanID = errors.New("xctx: missing span_id")
)

type contextFieldSetter struct {
	value string
	set   func(context.Context, string) (context.Context, error)
}

// applyOptionalFields 仅注入非空字段。
func applyOptionalFields(ctx context.Context, fields []contextFieldSetter) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		var err error
		ctx, err = field.set(ctx, field.value)
		if err != nil {
			return nil, err
		}
	}
	return ctx, nil
}
