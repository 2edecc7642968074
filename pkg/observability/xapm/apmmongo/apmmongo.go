// Package apmmongo 为 mongo-driver v2 记录数据库 span。
//
// NewMonitor 返回的 event.CommandMonitor 在命令开始时于 context 中的 Tracer 下
// 开始一个 type=db、subtype=mongodb 的 span，成功或失败时结束它；
// 失败的命令同时记录一个错误事件。context 中没有 Tracer 的命令不记录。
//
//	opts := options.Client().ApplyURI(uri).SetMonitor(apmmongo.NewMonitor())
package apmmongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/event"

	"github.com/omeyang/xapm/pkg/observability/xapm"
	"github.com/omeyang/xapm/pkg/util/xlru"
)

const (
	// SpanType 数据库 span 的类型
	SpanType = "db"
	// Subtype span 子类型与 context.db.type
	Subtype = "mongodb"

	// DefaultMaxInflight 默认同时跟踪的未完成命令数
	DefaultMaxInflight = 4096
)

// Option 监视器选项
type Option func(*monitor)

// WithStatement 是否把命令文档记录为 context.db.statement，默认记录。
// 命令中含敏感数据时可关闭。
func WithStatement(enabled bool) Option {
	return func(m *monitor) {
		m.statement = enabled
	}
}

// WithMaxInflight 设置同时跟踪的未完成命令上限。
// 超出时最久未完成的命令被放弃，其 span 立即结束。n 不在 (0, 1<<20] 内时忽略。
func WithMaxInflight(n int) Option {
	return func(m *monitor) {
		if n > 0 && n <= 1<<20 {
			m.maxInflight = n
		}
	}
}

type inflight struct {
	span   *xapm.Span
	tracer *xapm.Tracer
}

type monitor struct {
	statement   bool
	maxInflight int
	// spans RequestID → inflight
	spans *xlru.Table[int64, inflight]
}

// NewMonitor 创建命令监视器
func NewMonitor(opts ...Option) *event.CommandMonitor {
	m := &monitor{statement: true, maxInflight: DefaultMaxInflight}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	// maxInflight 已限定在有效范围内
	m.spans, _ = xlru.New(m.maxInflight, xlru.WithOnEvicted(func(_ int64, f inflight) {
		f.span.End()
	}))
	return &event.CommandMonitor{
		Started:   m.started,
		Succeeded: m.succeeded,
		Failed:    m.failed,
	}
}

func (m *monitor) started(ctx context.Context, e *event.CommandStartedEvent) {
	tracer := xapm.TracerFromContext(ctx)
	if tracer == nil {
		return
	}
	span, _, ok := xapm.StartSpanFromContext(ctx, spanName(e), SpanType, Subtype)
	if !ok {
		return
	}
	_ = span.SetAction(e.CommandName)

	db := map[string]any{
		"type":     Subtype,
		"instance": e.DatabaseName,
	}
	if m.statement {
		db["statement"] = e.Command.String()
	}
	_ = span.SetContext(map[string]any{
		"db":          db,
		"destination": map[string]any{"address": e.ConnectionID},
	})
	m.spans.Add(e.RequestID, inflight{span: span, tracer: tracer})
}

func (m *monitor) succeeded(_ context.Context, e *event.CommandSucceededEvent) {
	if f, ok := m.finish(e.RequestID); ok {
		f.span.End()
	}
}

func (m *monitor) failed(_ context.Context, e *event.CommandFailedEvent) {
	f, ok := m.finish(e.RequestID)
	if !ok {
		return
	}
	if e.Failure != nil {
		_, _ = f.tracer.CaptureError(e.Failure, f.span)
	}
	f.span.End()
}

func (m *monitor) finish(requestID int64) (inflight, bool) {
	return m.spans.Take(requestID)
}

// spanName "db.collection.command"，无法取得集合名时为 "db.command"。
func spanName(e *event.CommandStartedEvent) string {
	if coll, ok := e.Command.Lookup(e.CommandName).StringValueOK(); ok && coll != "" {
		return e.DatabaseName + "." + coll + "." + e.CommandName
	}
	return e.DatabaseName + "." + e.CommandName
}
