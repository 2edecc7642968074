package xapm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/omeyang/xapm/pkg/observability/xintake"
	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xtrace"
)

// DefaultTransactionType 未指定类型时的事务类型
const DefaultTransactionType = AgentName

// Tracer 一个工作单元的埋点入口：独立的注册表与事件缓冲区。
//
// Tracer 不跨工作单元共享；同一工作单元内的并发调用是安全的。
// 调用方应保证 Close 被调用（通常 defer）。
type Tracer struct {
	agent    *Agent
	registry *Registry
	pipeline *xintake.Pipeline
	tc       xtrace.TraceContext
	sampled  bool
	rate     float64

	mu      sync.Mutex
	current *Transaction
	open    []Event
	dropped int
	flushed bool
	closed  bool

	flushOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

func newTracer(ctx context.Context, a *Agent, tc xtrace.TraceContext) (*Tracer, error) {
	pipeline, err := xintake.NewPipeline(a.sender,
		xintake.WithMetadata(a.metadata),
		xintake.WithPipelineLogger(a.logger),
		xintake.WithPipelineRecorder(a.recorder),
	)
	if err != nil {
		return nil, err
	}

	// 合法的上游链路沿用其采样决定；否则按配置的采样率
	var sampled bool
	if tc.Valid {
		sampled = tc.IsRecordRequest()
	} else {
		sampled = a.sampler.ShouldSample(ctx, tc.TraceID)
		tc.Flags = xtrace.FlagsNone
		if sampled {
			tc.Flags = xtrace.FlagsSampled
		}
	}
	tc.State = tc.Tracestate().Clone()

	return &Tracer{
		agent:    a,
		registry: NewRegistry(a.ids),
		pipeline: pipeline,
		tc:       tc,
		sampled:  sampled,
		rate:     a.SampleRate(),
	}, nil
}

// TraceContext 本工作单元的链路标识（Flags 为采样决定）
func (t *Tracer) TraceContext() xtrace.TraceContext {
	return t.tc
}

// Registry 事件注册表
func (t *Tracer) Registry() *Registry {
	return t.registry
}

// Sampled 本工作单元是否被采样
func (t *Tracer) Sampled() bool {
	return t.sampled
}

// Pending 缓冲区中等待上报的文档数
func (t *Tracer) Pending() int {
	return t.pipeline.Len()
}

func (t *Tracer) now() time.Time {
	return t.agent.clock()
}

func (t *Tracer) sampleRate() float64 {
	return t.rate
}

func (t *Tracer) droppedSpans() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// =============================================================================
// 事件创建
// =============================================================================

// StartTransaction 开始一个事务。name 为空时使用默认名称（服务名 + YYYYMMDDHH），
// kind 为空时使用 DefaultTransactionType。第一个事务成为注册表的根。
func (t *Tracer) StartTransaction(name, kind string) (*Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTransactionLocked(name, kind)
}

func (t *Tracer) startTransactionLocked(name, kind string) (*Transaction, error) {
	if t.closed {
		return nil, ErrTracerClosed
	}
	now := t.now()
	if name == "" {
		name = t.agent.cfg.DefaultTransactionName(now)
	}
	if kind == "" {
		kind = DefaultTransactionType
	}

	node := &Node{
		TraceID:   t.tc.TraceID,
		Type:      EventTransaction,
		Name:      name,
		Kind:      kind,
		Timestamp: now.UnixMicro(),
		Started:   true,
	}
	if err := t.registry.Register(node, ""); err != nil {
		return nil, err
	}
	t.registry.ClaimRoot(node.ID)

	tx := &Transaction{
		event: event{
			tracer:   t,
			typ:      EventTransaction,
			id:       node.ID,
			traceID:  t.tc.TraceID,
			parentID: t.tc.ParentID,
			start:    now,
		},
		name:    name,
		kind:    kind,
		result:  DefaultResult,
		sampled: t.sampled,
		rate:    t.rate,
	}
	tx.marshal = tx.MarshalJSON
	t.current = tx
	t.open = append(t.open, tx)
	return tx, nil
}

// CurrentTransaction 返回最近开始的事务，没有时以默认名称开始一个。
func (t *Tracer) CurrentTransaction() (*Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentLocked()
}

func (t *Tracer) currentLocked() (*Transaction, error) {
	if t.current != nil {
		return t.current, nil
	}
	return t.startTransactionLocked("", "")
}

// resolveParent parent 为 nil 时取当前事务，并确认 parent 属于本 Tracer。
func (t *Tracer) resolveParent(parent Event) (Event, error) {
	if parent == nil {
		tx, err := t.currentLocked()
		if err != nil {
			return nil, err
		}
		return tx, nil
	}
	if _, ok := t.registry.Get(parent.ID()); !ok {
		return nil, fmt.Errorf("%w: %s", ErrParentNotFound, parent.ID())
	}
	return parent, nil
}

// StartSpan 在 parent 下开始一个 span；parent 为 nil 时挂在当前事务下。
func (t *Tracer) StartSpan(parent Event, name, kind, subtype string) (*Span, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTracerClosed
	}
	parent, err := t.resolveParent(parent)
	if err != nil {
		return nil, err
	}

	now := t.now()
	node := &Node{
		TraceID:   t.tc.TraceID,
		Type:      EventSpan,
		Name:      name,
		Kind:      kind,
		Subtype:   subtype,
		Timestamp: now.UnixMicro(),
		Started:   true,
	}
	if err := t.registry.Register(node, parent.ID()); err != nil {
		return nil, err
	}
	root, err := t.registry.ResolveRoot(node.ID)
	if err != nil {
		return nil, err
	}

	span := &Span{
		event: event{
			tracer:   t,
			typ:      EventSpan,
			id:       node.ID,
			traceID:  t.tc.TraceID,
			parentID: parent.ID(),
			start:    now,
		},
		transactionID: root,
		name:          name,
		kind:          kind,
		subtype:       subtype,
		sync:          true,
	}
	span.marshal = span.MarshalJSON
	t.open = append(t.open, span)
	return span, nil
}

// CaptureError 记录一个错误事件并立即结束它；parent 为 nil 时挂在当前事务下。
// 错误事件不受采样影响。
func (t *Tracer) CaptureError(err error, parent Event) (*ErrorEvent, error) {
	return t.captureError(err, parent, 1)
}

func (t *Tracer) captureError(cause error, parent Event, skip int) (*ErrorEvent, error) {
	if cause == nil {
		return nil, ErrNilError
	}
	frames := captureStack(skip + 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTracerClosed
	}
	parent, err := t.resolveParent(parent)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	now := t.now()
	node := &Node{
		TraceID:   t.tc.TraceID,
		Type:      EventError,
		Name:      cause.Error(),
		Timestamp: now.UnixMicro(),
		Started:   true,
	}
	if err := t.registry.Register(node, parent.ID()); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	root, err := t.registry.ResolveRoot(node.ID)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ev := &ErrorEvent{
		event: event{
			tracer:   t,
			typ:      EventError,
			id:       node.ID,
			traceID:  t.tc.TraceID,
			parentID: parent.ID(),
			start:    now,
		},
		transactionID: root,
		sampled:       t.sampled,
		exception:     newException(cause, frames),
		culprit:       culprit(frames),
	}
	ev.marshal = ev.MarshalJSON
	ev.finish()
	return ev, nil
}

// finished 事件结束回调：更新注册表并序列化进缓冲区。
func (t *Tracer) finished(e *event, duration float64) {
	if err := t.registry.Update(e.id, NodeState{Started: true, Ended: true, Duration: duration}); err != nil {
		t.agent.logger.Error(context.Background(), "xapm: registry update failed",
			xlog.EventID(e.id), xlog.Err(err))
	}

	t.mu.Lock()
	t.open = slices.DeleteFunc(t.open, func(o Event) bool { return o.ID() == e.id })
	if e.typ == EventSpan && !t.sampled {
		t.dropped++
		t.mu.Unlock()
		return
	}
	flushed := t.flushed
	t.mu.Unlock()

	if flushed {
		t.discardLate(e)
		return
	}
	ctx := context.Background()
	doc, err := e.marshal()
	if err != nil {
		t.agent.logger.Error(ctx, "xapm: event dropped",
			xlog.EventID(e.id), xlog.EventType(string(e.typ)),
			xlog.Err(fmt.Errorf("%w: %w", ErrSerialization, err)))
		return
	}
	// 序列化期间可能已经 Flush，此时 Pipeline 已关闭
	if !t.pipeline.AddEvent(doc, false) {
		t.discardLate(e)
	}
}

func (t *Tracer) discardLate(e *event) {
	t.agent.logger.Warn(context.Background(), "xapm: event ended after flush, discarded",
		xlog.EventID(e.id), xlog.EventType(string(e.typ)))
}

// =============================================================================
// 传播
// =============================================================================

// InjectHeaders 将发往下一跳的 traceparent/tracestate 写入 carrier，
// from 为当前操作（nil 表示当前事务）。
func (t *Tracer) InjectHeaders(carrier xtrace.Carrier, from Event) error {
	if from == nil {
		tx, err := t.CurrentTransaction()
		if err != nil {
			return err
		}
		from = tx
	}
	t.agent.codec.Inject(carrier, t.outgoing(), from.ID())
	return nil
}

// OutgoingHeaders 返回发往下一跳的请求头，from 为 nil 时使用当前事务。
func (t *Tracer) OutgoingHeaders(from Event) (http.Header, error) {
	h := make(http.Header)
	if err := t.InjectHeaders(xtrace.HeaderCarrier(h), from); err != nil {
		return nil, err
	}
	return h, nil
}

// outgoing 出站链路：tracestate 前插本服务条目（服务名 → 当前事务 id）。
func (t *Tracer) outgoing() xtrace.TraceContext {
	tc := t.tc
	tc.Version = xtrace.Version
	tc.State = t.tc.Tracestate().Clone()

	t.mu.Lock()
	current := t.current
	t.mu.Unlock()
	if current != nil {
		key := strings.ToLower(t.agent.cfg.ServiceName)
		tc.State.Add(key, base64.RawURLEncoding.EncodeToString([]byte(current.ID())))
	}
	return tc
}

// TraceResponseHeader traceresponse 响应头的值。
func (t *Tracer) TraceResponseHeader() string {
	t.mu.Lock()
	current := t.current
	t.mu.Unlock()
	spanID := ""
	if current != nil {
		spanID = current.ID()
	}
	return xtrace.TraceResponse(t.tc, spanID)
}

// =============================================================================
// 上报
// =============================================================================

// Flush 上报缓冲区中的事件，至多执行一次；之后结束的事件被丢弃。
// 上报失败已记录日志，返回的错误仅供调用方参考。
func (t *Tracer) Flush(ctx context.Context) error {
	var err error
	t.flushOnce.Do(func() {
		t.mu.Lock()
		t.flushed = true
		t.mu.Unlock()
		err = t.pipeline.Close(ctx)
	})
	return err
}

// Close 结束所有未结束的事件（后开始的先结束）后 Flush。幂等。
func (t *Tracer) Close(ctx context.Context) error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		open := slices.Clone(t.open)
		t.mu.Unlock()

		for _, e := range slices.Backward(open) {
			e.End()
		}
		t.closeErr = t.Flush(ctx)
	})
	return t.closeErr
}
