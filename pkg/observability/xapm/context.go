package xapm

import (
	"context"

	"github.com/omeyang/xapm/pkg/context/xctx"
	"github.com/omeyang/xapm/pkg/observability/xlog"
)

type (
	tracerKey struct{}
	eventKey  struct{}
)

// ContextWithTracer 将 Tracer 存入 context，并写入 xctx 追踪字段供日志关联。
func ContextWithTracer(ctx context.Context, t *Tracer) context.Context {
	if ctx == nil || t == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, tracerKey{}, t)
	tr := xctx.Trace{TraceID: t.tc.TraceID, TraceFlags: t.tc.Flags}
	t.mu.Lock()
	if t.current != nil {
		tr.SpanID = t.current.ID()
		tr.TransactionID = t.current.ID()
	}
	t.mu.Unlock()
	if next, err := xctx.WithTrace(ctx, tr); err == nil {
		ctx = next
	}
	return ctx
}

// TracerFromContext 取出 Tracer，不存在时返回 nil。
func TracerFromContext(ctx context.Context) *Tracer {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(tracerKey{}).(*Tracer)
	return t
}

// ContextWithEvent 记录当前活动的事件，作为后续 span 的默认父事件。
func ContextWithEvent(ctx context.Context, e Event) context.Context {
	if ctx == nil || e == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, eventKey{}, e)
	if next, err := xctx.WithSpanID(ctx, e.ID()); err == nil {
		ctx = next
	}
	return ctx
}

// EventFromContext 当前活动的事件，不存在时返回 nil。
func EventFromContext(ctx context.Context) Event {
	if ctx == nil {
		return nil
	}
	e, _ := ctx.Value(eventKey{}).(Event)
	return e
}

// StartSpanFromContext 使用 context 中的 Tracer 开始 span，父事件取 EventFromContext。
// context 中没有 Tracer 时返回 (nil, ctx, false)。
func StartSpanFromContext(ctx context.Context, name, kind, subtype string) (*Span, context.Context, bool) {
	t := TracerFromContext(ctx)
	if t == nil {
		return nil, ctx, false
	}
	span, err := t.StartSpan(EventFromContext(ctx), name, kind, subtype)
	if err != nil {
		t.agent.logger.Warn(ctx, "xapm: start span failed", xlog.Err(err))
		return nil, ctx, false
	}
	return span, ContextWithEvent(ctx, span), true
}
