package xtrace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/util/xid"
)

// =============================================================================
// Policy
// =============================================================================

// Policy traceparent 校验失败时的处理策略。
type Policy int

const (
	// PolicySoft 记录日志并合成新的链路，不向调用方返回错误。
	PolicySoft Policy = iota
	// PolicyStrict 返回校验错误。
	PolicyStrict
)

// String 返回策略名称。
func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "soft"
}

// ParsePolicy 解析 "soft" / "strict"，空串按 soft。
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "soft":
		return PolicySoft, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicySoft, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// =============================================================================
// 选项
// =============================================================================

// CodecOption Codec 配置选项。
type CodecOption func(*Codec)

// WithPolicy 设置 traceparent 失败策略，默认 PolicySoft。
func WithPolicy(p Policy) CodecOption {
	return func(c *Codec) {
		c.policy = p
	}
}

// WithTraceparentHeaders 设置 traceparent 头名称，按顺序查找，第一个非空者生效；
// 注入时写入全部名称。默认 traceparent 与 elastic-apm-traceparent。
func WithTraceparentHeaders(names ...string) CodecOption {
	return func(c *Codec) {
		if len(names) > 0 {
			c.traceparentHeaders = names
		}
	}
}

// WithLogger 设置日志记录器，默认使用 xlog 全局 logger。
func WithLogger(l xlog.Logger) CodecOption {
	return func(c *Codec) {
		c.logger = l
	}
}

// WithIDGenerator 设置合成 trace-id 使用的生成器。
func WithIDGenerator(g *xid.Generator) CodecOption {
	return func(c *Codec) {
		if g != nil {
			c.ids = g
		}
	}
}

// =============================================================================
// Codec
// =============================================================================

// Codec 入站提取与出站注入，并发安全（无可变状态）。
type Codec struct {
	policy             Policy
	traceparentHeaders []string
	logger             xlog.Logger
	ids                *xid.Generator
}

// NewCodec 创建 Codec。
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{
		policy:             PolicySoft,
		traceparentHeaders: []string{HeaderTraceparent, HeaderElasticTraceparent},
		ids:                xid.NewGenerator(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Policy 当前策略。
func (c *Codec) Policy() Policy {
	return c.policy
}

// Extract 从载体提取链路标识。
//
// 不存在 traceparent 或（soft 策略下）校验失败时，返回 Valid=false、
// 携带新合成 trace-id 的 TraceContext，error 为 nil。
// tracestate 溢出总是返回 ErrTracestateOverflow，此时 TraceContext 仍然可用。
func (c *Codec) Extract(ctx context.Context, carrier Carrier) (TraceContext, error) {
	raw := ""
	if carrier != nil {
		for _, name := range c.traceparentHeaders {
			if raw = firstValue(carrier, name); raw != "" {
				break
			}
		}
	}

	var (
		tc  TraceContext
		err error
	)
	if raw != "" {
		tc, err = ParseTraceparent(raw)
		if err != nil {
			if c.policy == PolicyStrict {
				return TraceContext{}, err
			}
			c.warn(ctx, "xtrace: invalid traceparent, starting new trace",
				slog.String("traceparent", raw), slog.Any("error", err))
		}
	}
	if !tc.Valid {
		rejected := ""
		if len(raw) > 3+traceIDLen {
			rejected = raw[3 : 3+traceIDLen]
		}
		tc, err = c.synthesize(rejected)
		if err != nil {
			return TraceContext{}, err
		}
	}

	var states []string
	if carrier != nil {
		states = carrier.Values(HeaderTracestate)
	}
	state, err := ParseTracestate(states...)
	if err != nil {
		tc.State = NewTracestate()
		return tc, err
	}
	tc.State = state
	return tc, nil
}

// synthesize 生成与被拒绝 trace-id 不同的新链路标识。
func (c *Codec) synthesize(rejected string) (TraceContext, error) {
	traceID, err := c.ids.GenerateUnique(xid.TraceIDBytes, func(s string) bool {
		return s == rejected || s == zeroTraceID
	})
	if err != nil {
		return TraceContext{}, fmt.Errorf("xtrace: synthesize trace-id: %w", err)
	}
	return TraceContext{
		Version: Version,
		TraceID: traceID,
		Flags:   FlagsNone,
	}, nil
}

// Inject 写入下一跳的 traceparent 与 tracestate。
// spanID 是当前操作（transaction 或 span）的 id。
func (c *Codec) Inject(carrier Carrier, tc TraceContext, spanID string) {
	if carrier == nil {
		return
	}
	tp := NextTraceparent(tc, spanID)
	if tp == "" {
		return
	}
	for _, name := range c.traceparentHeaders {
		carrier.Set(name, tp)
	}
	// 没有 traceparent 时不得发送 tracestate
	if s := tc.State.String(); s != "" {
		carrier.Set(HeaderTracestate, s)
	}
}

// InjectOutgoingContext 将链路标识写入 gRPC outgoing metadata，返回新的 context。
func (c *Codec) InjectOutgoingContext(ctx context.Context, tc TraceContext, spanID string) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.New(nil)
	}
	c.Inject(MetadataCarrier(md), tc, spanID)
	return metadata.NewOutgoingContext(ctx, md)
}

// ExtractIncomingContext 从 gRPC incoming metadata 提取链路标识。
func (c *Codec) ExtractIncomingContext(ctx context.Context) (TraceContext, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	return c.Extract(ctx, MetadataCarrier(md))
}

func (c *Codec) warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	if c.logger != nil {
		c.logger.Warn(ctx, msg, attrs...)
		return
	}
	xlog.Warn(ctx, msg, attrs...)
}
