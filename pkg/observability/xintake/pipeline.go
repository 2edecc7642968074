package xintake

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xmetrics"
)

// ndjsonDelimiter 每个文档后追加的分隔符
const ndjsonDelimiter = '\n'

// MetadataFunc 生成 metadata 文档，每个 Pipeline 最多调用一次。
type MetadataFunc func() ([]byte, error)

// PipelineOption Pipeline 选项
type PipelineOption func(*Pipeline)

// WithMetadata 设置 metadata 文档来源。
func WithMetadata(fn MetadataFunc) PipelineOption {
	return func(p *Pipeline) {
		p.metadata = fn
	}
}

// WithPipelineLogger 设置日志记录器
func WithPipelineLogger(l xlog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPipelineRecorder 设置指标记录器
func WithPipelineRecorder(r xmetrics.IntakeRecorder) PipelineOption {
	return func(p *Pipeline) {
		p.recorder = xmetrics.OrNoop(r)
	}
}

// Pipeline 一个工作单元的事件缓冲区，并发安全。
type Pipeline struct {
	sender   Sender
	metadata MetadataFunc
	logger   xlog.Logger
	recorder xmetrics.IntakeRecorder

	mu          sync.Mutex
	events      [][]byte
	metadataSet bool
	closed      bool
}

// NewPipeline 创建 Pipeline。
func NewPipeline(sender Sender, opts ...PipelineOption) (*Pipeline, error) {
	if sender == nil {
		return nil, ErrNilSender
	}
	p := &Pipeline{sender: sender, recorder: xmetrics.Noop{}}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = xlog.Default()
	}
	return p, nil
}

// AddEvent 追加一个序列化后的文档；prepend 为 true 时插到最前（metadata）。
// 空文档被忽略。Pipeline 已 Close 时不追加并返回 false。
func (p *Pipeline) AddEvent(doc []byte, prepend bool) bool {
	if len(doc) == 0 {
		return true
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if prepend {
		p.events = append([][]byte{doc}, p.events...)
	} else {
		p.events = append(p.events, doc)
	}
	p.mu.Unlock()
	p.recorder.EventBuffered(context.Background(), DocType(doc))
	return true
}

// Len 缓冲区中的文档数
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// BuildBody 构建 NDJSON 请求体，每个文档后跟一个换行。
func (p *Pipeline) BuildBody() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return buildBody(p.events)
}

// Reset 清空缓冲区
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// Push 取出缓冲区中的全部文档并交给 Sender。
//
// 首次 Push 时前插 metadata 文档；无论发送结果如何缓冲区都会被清空。
// 缓冲区为空时不发送。
func (p *Pipeline) Push(ctx context.Context) error {
	return p.push(ctx, false)
}

// Close 最后一次 Push：取出缓冲区的同时关闭 Pipeline，之后的 AddEvent 返回 false。
// 重复调用不发送。
func (p *Pipeline) Close(ctx context.Context) error {
	return p.push(ctx, true)
}

// Closed Pipeline 是否已关闭
func (p *Pipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pipeline) push(ctx context.Context, closing bool) error {
	req := p.drain(ctx, closing)
	if req == nil {
		return nil
	}
	return p.sender.Deliver(ctx, req)
}

func (p *Pipeline) drain(ctx context.Context, closing bool) *Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() { p.events = nil }()

	if p.closed {
		return nil
	}
	p.closed = closing

	if len(p.events) == 0 {
		return nil
	}
	if !p.metadataSet && p.metadata != nil {
		p.metadataSet = true
		doc, err := p.metadata()
		if err != nil {
			p.logger.Error(ctx, "xintake: metadata serialization failed",
				xlog.Component("xintake"), xlog.Err(err))
		} else if len(doc) > 0 {
			p.events = append([][]byte{doc}, p.events...)
			p.recorder.EventBuffered(ctx, DocType(doc))
		}
	}
	return &Request{Body: buildBody(p.events), Events: len(p.events)}
}

func buildBody(events [][]byte) []byte {
	size := 0
	for _, e := range events {
		size += len(e) + 1
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	for _, e := range events {
		buf.Write(e)
		buf.WriteByte(ndjsonDelimiter)
	}
	return buf.Bytes()
}

// DocType 返回 intake 文档的顶层键（metadata/transaction/span/error），
// 无法识别时返回 "unknown"。
func DocType(doc []byte) string {
	doc = bytes.TrimLeft(doc, " \t\r\n")
	if len(doc) < 2 || doc[0] != '{' {
		return "unknown"
	}
	rest := bytes.TrimLeft(doc[1:], " \t\r\n")
	if len(rest) == 0 || rest[0] != '"' {
		return "unknown"
	}
	end := bytes.IndexByte(rest[1:], '"')
	if end <= 0 {
		return "unknown"
	}
	return string(rest[1 : 1+end])
}

var _ slog.LogValuer = (*Request)(nil)

// LogValue 日志中只输出批次摘要，不输出请求体。
func (r *Request) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("batch_id", r.BatchID),
		slog.Int("events", r.Events),
		slog.Int("bytes", len(r.Body)),
	)
}
