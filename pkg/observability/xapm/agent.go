package xapm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xapm/pkg/observability/xintake"
	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xmetrics"
	"github.com/omeyang/xapm/pkg/observability/xsampling"
	"github.com/omeyang/xapm/pkg/observability/xtrace"
	"github.com/omeyang/xapm/pkg/util/xid"
	"github.com/omeyang/xapm/pkg/util/xproc"
)

// =============================================================================
// 选项
// =============================================================================

// Option Agent 选项
type Option func(*agentOptions)

type agentOptions struct {
	logger    xlog.Logger
	transport xintake.Transport
	sampler   xsampling.Sampler
	recorder  xmetrics.IntakeRecorder
	ids       *xid.Generator
	clock     func() time.Time
}

// WithLogger 设置日志记录器，默认 xlog.Default()。
func WithLogger(l xlog.Logger) Option {
	return func(o *agentOptions) {
		o.logger = l
	}
}

// WithTransport 替换默认的 RestyTransport。
func WithTransport(t xintake.Transport) Option {
	return func(o *agentOptions) {
		o.transport = t
	}
}

// WithSampler 替换按 sample_rate 构造的采样器。
func WithSampler(s xsampling.Sampler) Option {
	return func(o *agentOptions) {
		o.sampler = s
	}
}

// WithRecorder 设置 intake 指标记录器。
func WithRecorder(r xmetrics.IntakeRecorder) Option {
	return func(o *agentOptions) {
		o.recorder = r
	}
}

// WithIDGenerator 设置事件与 trace-id 生成器。
func WithIDGenerator(g *xid.Generator) Option {
	return func(o *agentOptions) {
		o.ids = g
	}
}

// WithClock 设置时钟，仅用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *agentOptions) {
		o.clock = now
	}
}

// =============================================================================
// Agent
// =============================================================================

// Agent 进程级 APM agent，并发安全。每个工作单元通过 NewTracer 获得独立的 Tracer。
type Agent struct {
	cfg      Config
	logger   xlog.Logger
	codec    *xtrace.Codec
	sampler  xsampling.Sampler
	recorder xmetrics.IntakeRecorder
	ids      *xid.Generator
	clock    func() time.Time

	transport xintake.Transport
	sender    xintake.Sender
	async     *xintake.AsyncSender

	ephemeralID string
	metadata    func() ([]byte, error)

	closeOnce sync.Once
	closeErr  error
}

// NewAgent 校验配置并构造 Agent。
//
// 未通过 WithTransport 注入传输层时，server_url 为空返回 xintake.ErrMissingServerURL。
func NewAgent(cfg Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o agentOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	if o.ids == nil {
		o.ids = xid.NewGenerator()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	o.recorder = xmetrics.OrNoop(o.recorder)

	if o.sampler == nil {
		rs, err := xsampling.NewRatioSampler(cfg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		o.sampler = rs
	}

	if o.transport == nil {
		t, err := xintake.NewRestyTransport(xintake.TransportConfig{
			ServerURL:   cfg.ServerURL,
			SecretToken: cfg.SecretToken,
			Timeout:     cfg.RequestTimeout,
			Compress:    cfg.Compress,
			UserAgent:   UserAgent(),
		})
		if err != nil {
			return nil, err
		}
		o.transport = t
	}

	a := &Agent{
		cfg:         cfg,
		logger:      o.logger,
		sampler:     o.sampler,
		recorder:    o.recorder,
		ids:         o.ids,
		clock:       o.clock,
		transport:   o.transport,
		ephemeralID: xid.EphemeralID(),
	}
	a.codec = xtrace.NewCodec(
		xtrace.WithPolicy(cfg.Policy()),
		xtrace.WithLogger(o.logger),
		xtrace.WithIDGenerator(o.ids),
	)
	a.metadata = sync.OnceValues(func() ([]byte, error) {
		return buildMetadata(a.cfg, a.ephemeralID, xproc.Snapshot())
	})

	clientOpts := []xintake.ClientOption{
		xintake.WithMaxPendingWait(cfg.MaxPendingWait),
		xintake.WithLogger(o.logger),
		xintake.WithRecorder(o.recorder),
		xintake.WithDebug(cfg.Debug),
	}
	if seq, err := xid.NewSequence(nil); err == nil {
		clientOpts = append(clientOpts, xintake.WithSequence(seq))
	} else {
		o.logger.Warn(context.Background(), "xapm: batch sequence unavailable", xlog.Err(err))
	}
	client, err := xintake.NewClient(o.transport, clientOpts...)
	if err != nil {
		return nil, err
	}
	a.sender = client

	if cfg.Async {
		async, err := xintake.NewAsyncSender(client,
			xintake.WithQueueSize(cfg.QueueSize),
			xintake.WithAsyncLogger(o.logger),
			xintake.WithAsyncRecorder(o.recorder),
		)
		if err != nil {
			return nil, err
		}
		a.async = async
		a.sender = async
	}

	if cfg.Debug {
		o.logger.Debug(context.Background(), "xapm: agent started",
			slog.String(xlog.KeyServiceName, cfg.ServiceName),
			slog.String(xlog.KeyEnvironment, cfg.Environment),
			xlog.ServerURL(o.transport.Endpoint()),
			slog.Bool("async", cfg.Async),
			slog.Float64("sample_rate", cfg.SampleRate))
	}
	return a, nil
}

// Config 构造时的配置
func (a *Agent) Config() Config {
	return a.cfg
}

// Logger 日志记录器
func (a *Agent) Logger() xlog.Logger {
	return a.logger
}

// Codec trace-context 编解码器
func (a *Agent) Codec() *xtrace.Codec {
	return a.codec
}

// Transport collector 传输层
func (a *Agent) Transport() xintake.Transport {
	return a.transport
}

// EphemeralID 本进程 agent 实例 id
func (a *Agent) EphemeralID() string {
	return a.ephemeralID
}

// SampleRate 当前采样率
func (a *Agent) SampleRate() float64 {
	if rs, ok := a.sampler.(*xsampling.RatioSampler); ok {
		return rs.Rate()
	}
	return a.cfg.SampleRate
}

// SetSampleRate 运行时修改采样率，只对默认的比例采样器生效。
func (a *Agent) SetSampleRate(rate float64) error {
	rs, ok := a.sampler.(*xsampling.RatioSampler)
	if !ok {
		return fmt.Errorf("%w: sampler %T does not support rate updates", ErrInvalidConfig, a.sampler)
	}
	if err := rs.SetRate(rate); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Ping 检查 collector 是否可达
func (a *Agent) Ping(ctx context.Context) (*xintake.Response, error) {
	return a.transport.Ping(ctx)
}

// Close 异步模式下等待队列中的批次发送完毕或 ctx 结束。幂等。
func (a *Agent) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.async != nil {
			a.closeErr = a.async.Close(ctx)
		}
	})
	return a.closeErr
}

// NewTracer 为一个工作单元创建 Tracer，链路标识从 carrier 提取（可为 nil）。
//
// soft 策略下非法的 traceparent 会被替换为新链路；strict 策略下返回校验错误。
// tracestate 成员超过 32 个时总是返回 xtrace.ErrTracestateOverflow。
func (a *Agent) NewTracer(ctx context.Context, carrier xtrace.Carrier) (*Tracer, error) {
	tc, err := a.codec.Extract(ctx, carrier)
	if err != nil {
		return nil, err
	}
	return newTracer(ctx, a, tc)
}
