package xretry

import (
	"context"
	"errors"

	retry "github.com/avast/retry-go/v5"
)

// retry-go 类型别名
type (
	Option      = retry.Option
	OnRetryFunc = retry.OnRetryFunc
	Error       = retry.Error
)

// retry-go 选项
var (
	Attempts      = retry.Attempts
	Delay         = retry.Delay
	MaxDelay      = retry.MaxDelay
	MaxJitter     = retry.MaxJitter
	DelayType     = retry.DelayType
	OnRetry       = retry.OnRetry
	RetryIf       = retry.RetryIf
	LastErrorOnly = retry.LastErrorOnly

	FixedDelay   = retry.FixedDelay
	BackOffDelay = retry.BackOffDelay

	Unrecoverable = retry.Unrecoverable
	IsRecoverable = retry.IsRecoverable
)

// ErrNilFunc 操作函数为 nil
var ErrNilFunc = errors.New("xretry: function cannot be nil")

// RetryableError 可声明自身是否值得重试的错误
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable 错误链上任一 RetryableError 返回 false 时不重试，其余错误默认可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

// Do 执行带重试的操作，ctx 取消时停止。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(defaultOpts(ctx, opts)...).Do(fn)
}

// DoWithData 执行带重试的操作（有返回值）
func DoWithData[T any](ctx context.Context, fn func() (T, error), opts ...Option) (T, error) {
	if fn == nil {
		var zero T
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](defaultOpts(ctx, opts)...).Do(fn)
}

func defaultOpts(ctx context.Context, opts []Option) []Option {
	all := make([]Option, 0, len(opts)+2)
	all = append(all,
		retry.Context(ctx),
		RetryIf(func(err error) bool {
			return IsRecoverable(err) && IsRetryable(err)
		}))
	return append(all, opts...)
}
