package xintake

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xmetrics"
	"github.com/omeyang/xapm/pkg/util/xid"
)

// DefaultMaxPendingWait Push 等待发送完成的默认上限
const DefaultMaxPendingWait = time.Second

// Sender 接收 Pipeline 取出的批次。
type Sender interface {
	Deliver(ctx context.Context, req *Request) error
}

// ClientOption Client 选项
type ClientOption func(*Client)

// WithMaxPendingWait 设置等待上限，<= 0 时忽略。
func WithMaxPendingWait(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.maxWait = d
		}
	}
}

// WithLogger 设置日志记录器，默认 xlog.Default()。
func WithLogger(l xlog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder 设置指标记录器
func WithRecorder(r xmetrics.IntakeRecorder) ClientOption {
	return func(c *Client) {
		c.recorder = xmetrics.OrNoop(r)
	}
}

// WithSequence 设置批次序号生成器
func WithSequence(s *xid.Sequence) ClientOption {
	return func(c *Client) {
		c.seq = s
	}
}

// WithDebug 成功上报时输出 debug 日志
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.debug = debug
	}
}

// Client 同步 Sender：有界等待，至多一次。
type Client struct {
	transport Transport
	maxWait   time.Duration
	logger    xlog.Logger
	recorder  xmetrics.IntakeRecorder
	seq       *xid.Sequence
	debug     bool
}

// NewClient 创建 Client。
func NewClient(transport Transport, opts ...ClientOption) (*Client, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	c := &Client{
		transport: transport,
		maxWait:   DefaultMaxPendingWait,
		recorder:  xmetrics.Noop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = xlog.Default()
	}
	return c, nil
}

// Transport 底层传输
func (c *Client) Transport() Transport {
	return c.transport
}

// MaxPendingWait 等待上限
func (c *Client) MaxPendingWait() time.Duration {
	return c.maxWait
}

type sendResult struct {
	resp *Response
	err  error
}

// Deliver 发送批次并最多等待 MaxPendingWait。
//
// 发送在独立 goroutine 上执行；等待超时或 ctx 结束时取消请求并返回
// ErrAbandoned（或 ctx 错误）。批次不会重试。
func (c *Client) Deliver(ctx context.Context, req *Request) error {
	if req == nil {
		return ErrNilRequest
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.BatchID == 0 && c.seq != nil {
		if id, err := c.seq.Next(); err == nil {
			req.BatchID = id
		}
	}

	ctx, span := c.recorder.StartBatch(ctx, c.transport.Endpoint())
	result := xmetrics.BatchResult{Events: req.Events, Bytes: len(req.Body)}

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan sendResult, 1)
	go func() {
		resp, err := c.transport.Send(sendCtx, req)
		done <- sendResult{resp: resp, err: err}
	}()

	timer := time.NewTimer(c.maxWait)
	defer timer.Stop()

	var err error
	select {
	case r := <-done:
		err = r.err
		if r.resp != nil {
			result.StatusCode = r.resp.StatusCode
		}
		var se *StatusError
		if errors.As(err, &se) {
			result.StatusCode = se.StatusCode
		}
		if err == nil {
			result.Outcome = xmetrics.OutcomeSent
		} else {
			result.Outcome = xmetrics.OutcomeFailed
		}
	case <-timer.C:
		err = ErrAbandoned
		result.Outcome = xmetrics.OutcomeAbandoned
	case <-ctx.Done():
		err = ctx.Err()
		result.Outcome = xmetrics.OutcomeAbandoned
	}
	result.Err = err
	span.End(result)
	c.log(ctx, req, result)
	return err
}

func (c *Client) log(ctx context.Context, req *Request, res xmetrics.BatchResult) {
	attrs := []slog.Attr{
		xlog.Component("xintake"),
		xlog.BatchID(req.BatchID),
		xlog.Count(int64(req.Events)),
		xlog.ServerURL(c.transport.Endpoint()),
	}
	if res.StatusCode != 0 {
		attrs = append(attrs, xlog.StatusCode(res.StatusCode))
	}
	switch res.Outcome {
	case xmetrics.OutcomeSent:
		if c.debug {
			c.logger.Debug(ctx, "xintake: batch sent", attrs...)
		}
	case xmetrics.OutcomeAbandoned:
		attrs = append(attrs, xlog.Duration(c.maxWait), xlog.Err(res.Err))
		c.logger.Warn(ctx, "xintake: batch abandoned", attrs...)
	default:
		attrs = append(attrs, xlog.Err(res.Err))
		c.logger.Error(ctx, "xintake: batch failed", attrs...)
	}
}

var _ Sender = (*Client)(nil)
