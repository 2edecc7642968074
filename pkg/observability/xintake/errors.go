package xintake

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingServerURL 未配置 collector 地址
	ErrMissingServerURL = errors.New("xintake: server url is required")

	// ErrTransport 网络错误或请求超时
	ErrTransport = errors.New("xintake: transport failed")

	// ErrUnexpectedStatus collector 返回非 2xx
	ErrUnexpectedStatus = errors.New("xintake: unexpected status")

	// ErrAbandoned 等待超过 MaxPendingWait，批次已放弃
	ErrAbandoned = errors.New("xintake: batch abandoned after pending wait")

	// ErrNilTransport Transport 为 nil
	ErrNilTransport = errors.New("xintake: transport cannot be nil")

	// ErrNilSender Sender 为 nil
	ErrNilSender = errors.New("xintake: sender cannot be nil")

	// ErrNilRequest Request 为 nil
	ErrNilRequest = errors.New("xintake: request cannot be nil")

	// ErrClosed AsyncSender 已关闭
	ErrClosed = errors.New("xintake: sender closed")
)

// StatusError collector 返回的非 2xx 响应。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: %d: %s", ErrUnexpectedStatus, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Retryable 5xx 与 429 可重试；其余 4xx 是请求本身的问题。
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// maxErrorBody 错误信息中保留的响应体长度上限
const maxErrorBody = 256

func newStatusError(code int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{StatusCode: code, Body: string(body)}
}
