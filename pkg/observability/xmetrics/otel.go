package xmetrics

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xapm/pkg/context/xctx"
)

const (
	defaultInstrumentationName = "github.com/omeyang/xapm/pkg/observability/xintake"

	metricEvents   = "xapm.intake.events"
	metricBatches  = "xapm.intake.batches"
	metricDuration = "xapm.intake.duration"
	metricBytes    = "xapm.intake.bytes"
)

type otelConfig struct {
	name           string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option OTel recorder 选项
type Option func(*otelConfig)

// WithInstrumentationName 设置 instrumentation 名称
func WithInstrumentationName(name string) Option {
	return func(c *otelConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithTracerProvider 设置 TracerProvider，默认 otel 全局。
func WithTracerProvider(p trace.TracerProvider) Option {
	return func(c *otelConfig) {
		if p != nil {
			c.tracerProvider = p
		}
	}
}

// WithMeterProvider 设置 MeterProvider，默认 otel 全局。
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(c *otelConfig) {
		if p != nil {
			c.meterProvider = p
		}
	}
}

type otelRecorder struct {
	tracer   trace.Tracer
	events   metric.Int64Counter
	batches  metric.Int64Counter
	duration metric.Float64Histogram
	bytes    metric.Int64Counter
}

// NewOTelRecorder 创建基于 OpenTelemetry 的 IntakeRecorder。
func NewOTelRecorder(opts ...Option) (IntakeRecorder, error) {
	cfg := &otelConfig{
		name:           defaultInstrumentationName,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		if opt == nil {
			return nil, ErrNilOption
		}
		opt(cfg)
	}

	meter := cfg.meterProvider.Meter(cfg.name)
	r := &otelRecorder{tracer: cfg.tracerProvider.Tracer(cfg.name)}

	var err error
	if r.events, err = meter.Int64Counter(metricEvents,
		metric.WithDescription("events buffered for intake"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("xmetrics: create %s: %w", metricEvents, err)
	}
	if r.batches, err = meter.Int64Counter(metricBatches,
		metric.WithDescription("intake batches by outcome"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("xmetrics: create %s: %w", metricBatches, err)
	}
	if r.duration, err = meter.Float64Histogram(metricDuration,
		metric.WithDescription("intake batch send duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("xmetrics: create %s: %w", metricDuration, err)
	}
	if r.bytes, err = meter.Int64Counter(metricBytes,
		metric.WithDescription("intake request body bytes"), metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("xmetrics: create %s: %w", metricBytes, err)
	}
	return r, nil
}

func (r *otelRecorder) EventBuffered(ctx context.Context, eventType string) {
	r.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

func (r *otelRecorder) BatchesDropped(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	r.batches.Add(ctx, int64(n), metric.WithAttributes(outcomeAttr(OutcomeDropped)))
}

func (r *otelRecorder) StartBatch(ctx context.Context, serverURL string) (context.Context, BatchSpan) {
	ctx, span := r.tracer.Start(remoteParent(ctx), "intake.push",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("server.url", serverURL)))
	return ctx, &otelSpan{rec: r, span: span, ctx: ctx, start: time.Now()}
}

type otelSpan struct {
	rec   *otelRecorder
	span  trace.Span
	ctx   context.Context
	start time.Time
	once  sync.Once
}

func (s *otelSpan) End(res BatchResult) {
	s.once.Do(func() {
		outcome := res.Outcome
		if outcome == "" {
			outcome = OutcomeSent
			if res.Err != nil {
				outcome = OutcomeFailed
			}
		}

		s.span.SetAttributes(
			outcomeAttr(outcome),
			attribute.Int("batch.events", res.Events),
			attribute.Int("batch.bytes", res.Bytes))
		if res.StatusCode > 0 {
			s.span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
		}
		if res.Err != nil {
			s.span.RecordError(res.Err)
			s.span.SetStatus(codes.Error, res.Err.Error())
		} else if outcome == OutcomeSent {
			s.span.SetStatus(codes.Ok, "")
		}
		s.span.End()

		// 请求 ctx 可能已因超时取消，指标仍需记录
		ctx := context.WithoutCancel(s.ctx)
		attrs := metric.WithAttributes(outcomeAttr(outcome))
		s.rec.batches.Add(ctx, 1, attrs)
		s.rec.duration.Record(ctx, time.Since(s.start).Seconds(), attrs)
		if outcome == OutcomeSent && res.Bytes > 0 {
			s.rec.bytes.Add(ctx, int64(res.Bytes))
		}
	})
}

func outcomeAttr(o Outcome) attribute.KeyValue {
	return attribute.String("outcome", string(o))
}

// remoteParent 把 xctx 中的 APM trace 身份作为远端父级放入 ctx。
func remoteParent(ctx context.Context) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	tid, err := trace.TraceIDFromHex(xctx.TraceID(ctx))
	if err != nil {
		return ctx
	}
	sid, err := trace.SpanIDFromHex(xctx.SpanID(ctx))
	if err != nil {
		return ctx
	}
	var flags trace.TraceFlags
	if f, err := strconv.ParseUint(xctx.TraceFlags(ctx), 16, 8); err == nil {
		flags = trace.TraceFlags(f)
	}
	return trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: flags,
		Remote:     true,
	}))
}
