package xbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// 类型别名，直接暴露 gobreaker 的状态与计数。
type (
	State  = gobreaker.State
	Counts = gobreaker.Counts
)

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// 默认配置
const (
	DefaultFailureThreshold = 5
	DefaultTimeout          = 30 * time.Second
)

// TripPolicy 熔断判定策略
type TripPolicy interface {
	ReadyToTrip(counts Counts) bool
}

// ConsecutiveFailures 连续失败 N 次熔断
type ConsecutiveFailures uint32

func (n ConsecutiveFailures) ReadyToTrip(c Counts) bool {
	return c.ConsecutiveFailures >= uint32(n)
}

// FailureRatio 请求数达到 MinRequests 且失败率不低于 Ratio 时熔断
type FailureRatio struct {
	Ratio       float64
	MinRequests uint32
}

func (p FailureRatio) ReadyToTrip(c Counts) bool {
	if c.Requests == 0 || c.Requests < p.MinRequests {
		return false
	}
	return float64(c.TotalFailures)/float64(c.Requests) >= p.Ratio
}

// Option 熔断器选项
type Option func(*Breaker)

// WithTripPolicy 设置熔断策略，nil 忽略。
func WithTripPolicy(p TripPolicy) Option {
	return func(b *Breaker) {
		if p != nil {
			b.trip = p
		}
	}
}

// WithTimeout 设置 Open 到 HalfOpen 的等待时间
func WithTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInterval 设置 Closed 状态下清零计数的周期，0 表示不清零。
func WithInterval(d time.Duration) Option {
	return func(b *Breaker) {
		b.interval = d
	}
}

// WithMaxRequests 设置 HalfOpen 允许通过的请求数
func WithMaxRequests(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}

// WithSuccessFunc 自定义成功判定，默认 err == nil。
func WithSuccessFunc(fn func(err error) bool) Option {
	return func(b *Breaker) {
		b.isSuccessful = fn
	}
}

// WithOnStateChange 状态变化回调
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// Breaker 熔断器
type Breaker struct {
	name          string
	trip          TripPolicy
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	isSuccessful  func(error) bool
	onStateChange func(name string, from, to State)

	cb *gobreaker.CircuitBreaker[any]
}

// New 创建熔断器。默认连续失败 5 次熔断，30 秒后半开。
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		trip:        ConsecutiveFailures(DefaultFailureThreshold),
		timeout:     DefaultTimeout,
		maxRequests: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	st := gobreaker.Settings{
		Name:          b.name,
		MaxRequests:   b.maxRequests,
		Interval:      b.interval,
		Timeout:       b.timeout,
		ReadyToTrip:   b.trip.ReadyToTrip,
		IsSuccessful:  b.isSuccessful,
		OnStateChange: b.onStateChange,
	}
	b.cb = gobreaker.NewCircuitBreaker[any](st)
	return b
}

// Do 执行受保护的操作。ctx 仅在入口检查，不传递给 fn。
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if fn == nil {
		return ErrNilFunc
	}
	_, err := Execute(ctx, b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Execute 泛型版本的 Do
func Execute[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, wrap(err, b.name)
	}
	v, _ := res.(T)
	return v, nil
}

// Name 熔断器名称
func (b *Breaker) Name() string {
	return b.name
}

// State 当前状态
func (b *Breaker) State() State {
	return b.cb.State()
}

// Counts 当前窗口计数
func (b *Breaker) Counts() Counts {
	return b.cb.Counts()
}
