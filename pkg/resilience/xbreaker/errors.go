package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrNilContext context 为 nil
	ErrNilContext = errors.New("xbreaker: context cannot be nil")

	// ErrNilFunc 操作函数为 nil
	ErrNilFunc = errors.New("xbreaker: function cannot be nil")
)

// BreakerError 熔断器拒绝请求时返回的错误。
type BreakerError struct {
	Err   error // gobreaker.ErrOpenState 或 gobreaker.ErrTooManyRequests
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("xbreaker: %s: %v", e.Name, e.Err)
	}
	return "xbreaker: " + e.Err.Error()
}

func (e *BreakerError) Unwrap() error {
	return e.Err
}

// Retryable 熔断错误不可重试
func (e *BreakerError) Retryable() bool {
	return false
}

// wrap 只包装当前熔断器直接返回的 sentinel，状态由错误类型推导。
func wrap(err error, name string) error {
	switch {
	case err == nil:
		return nil
	case err == gobreaker.ErrOpenState: //nolint:errorlint // sentinel returned directly by gobreaker
		return &BreakerError{Err: err, Name: name, State: StateOpen}
	case err == gobreaker.ErrTooManyRequests: //nolint:errorlint // sentinel returned directly by gobreaker
		return &BreakerError{Err: err, Name: name, State: StateHalfOpen}
	default:
		return err
	}
}

// IsOpen 错误是否因熔断器打开
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState)
}

// IsBreakerError 错误是否来自熔断器（打开或半开请求过多）
func IsBreakerError(err error) bool {
	return IsOpen(err) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
