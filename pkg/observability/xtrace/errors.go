package xtrace

import (
	"errors"
	"fmt"
)

// ErrValidation 所有 trace context 校验错误的根错误。
var ErrValidation = errors.New("xtrace: invalid trace context")

var (
	// ErrMalformedTraceparent traceparent 不是 4 个以 "-" 分隔的字段。
	ErrMalformedTraceparent = fmt.Errorf("%w: malformed traceparent", ErrValidation)

	// ErrInvalidVersion version 不是 "00"。
	ErrInvalidVersion = fmt.Errorf("%w: unsupported version", ErrValidation)

	// ErrInvalidTraceID trace-id 长度、编码错误或为全零。
	ErrInvalidTraceID = fmt.Errorf("%w: invalid trace-id", ErrValidation)

	// ErrInvalidParentID parent-id 长度、编码错误或为全零。
	ErrInvalidParentID = fmt.Errorf("%w: invalid parent-id", ErrValidation)

	// ErrInvalidFlags trace-flags 不是 2 位十六进制。
	ErrInvalidFlags = fmt.Errorf("%w: invalid trace-flags", ErrValidation)

	// ErrTracestateOverflow 入站 tracestate 成员数超过 32。
	ErrTracestateOverflow = fmt.Errorf("%w: tracestate has more than %d members", ErrValidation, MaxTracestateMembers)

	// ErrInvalidPolicy 无法识别的策略名称。
	ErrInvalidPolicy = errors.New("xtrace: invalid policy")
)
