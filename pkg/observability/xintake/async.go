package xintake

import (
	"context"
	"errors"

	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xmetrics"
	"github.com/omeyang/xapm/pkg/util/xpool"
)

// DefaultQueueSize AsyncSender 默认队列长度（批次数）
const DefaultQueueSize = 64

// AsyncOption AsyncSender 选项
type AsyncOption func(*asyncOptions)

type asyncOptions struct {
	queueSize int
	logger    xlog.Logger
	recorder  xmetrics.IntakeRecorder
}

// WithQueueSize 设置队列长度
func WithQueueSize(n int) AsyncOption {
	return func(o *asyncOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithAsyncLogger 设置日志记录器
func WithAsyncLogger(l xlog.Logger) AsyncOption {
	return func(o *asyncOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAsyncRecorder 设置指标记录器（记录被丢弃的批次）
func WithAsyncRecorder(r xmetrics.IntakeRecorder) AsyncOption {
	return func(o *asyncOptions) {
		o.recorder = xmetrics.OrNoop(r)
	}
}

// AsyncSender 异步 Sender：Deliver 只入队，单个后台 worker 通过 Client 发送。
//
// 队列满时丢弃最旧的批次，工作单元的收尾永远不会阻塞在网络 I/O 上。
type AsyncSender struct {
	client *Client
	pool   *xpool.Pool[*Request]
	logger xlog.Logger
}

// NewAsyncSender 创建并启动 AsyncSender。
func NewAsyncSender(client *Client, opts ...AsyncOption) (*AsyncSender, error) {
	if client == nil {
		return nil, ErrNilSender
	}
	o := asyncOptions{queueSize: DefaultQueueSize, recorder: xmetrics.Noop{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}

	s := &AsyncSender{client: client, logger: o.logger}
	pool, err := xpool.New(1, o.queueSize, s.handle,
		xpool.WithName("xintake"),
		xpool.WithLogger(o.logger),
		xpool.WithDropHook(func(n int) {
			o.recorder.BatchesDropped(context.Background(), n)
		}),
	)
	if err != nil {
		return nil, err
	}
	s.pool = pool
	return s, nil
}

// Deliver 将批次入队后立即返回。队列满时丢弃最旧的批次，不返回错误。
func (s *AsyncSender) Deliver(ctx context.Context, req *Request) error {
	if req == nil {
		return ErrNilRequest
	}
	dropped, err := s.pool.SubmitDropOldest(req)
	if err != nil {
		if errors.Is(err, xpool.ErrPoolStopped) {
			return ErrClosed
		}
		return err
	}
	if dropped > 0 {
		s.logger.Warn(ctx, "xintake: queue full, dropped oldest batch",
			xlog.Component("xintake"), xlog.Count(int64(dropped)))
	}
	return nil
}

// Pending 队列中尚未发送的批次数
func (s *AsyncSender) Pending() int {
	return s.pool.Len()
}

// Close 停止接收新批次，等待已入队批次发送完毕或 ctx 结束。
func (s *AsyncSender) Close(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}

func (s *AsyncSender) handle(req *Request) {
	// 错误已由 Client 记录
	_ = s.client.Deliver(context.Background(), req)
}

var _ Sender = (*AsyncSender)(nil)
