package xmetrics

import (
	"context"
	"errors"
)

// ErrNilOption 传入了 nil Option
var ErrNilOption = errors.New("xmetrics: nil option")

// Outcome 批次结果
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeDropped   Outcome = "dropped"
)

// BatchResult 一次批次上报的结果
type BatchResult struct {
	Outcome    Outcome
	Events     int
	Bytes      int
	StatusCode int
	Err        error
}

// BatchSpan 一次批次上报的观测跨度，End 幂等。
type BatchSpan interface {
	End(result BatchResult)
}

// IntakeRecorder intake 管道指标记录
type IntakeRecorder interface {
	// EventBuffered 一个事件进入缓冲区
	EventBuffered(ctx context.Context, eventType string)

	// StartBatch 开始一次批次上报
	StartBatch(ctx context.Context, serverURL string) (context.Context, BatchSpan)

	// BatchesDropped 批次在发送前被丢弃（异步队列满）
	BatchesDropped(ctx context.Context, n int)
}

// Noop 空实现
type Noop struct{}

func (Noop) EventBuffered(context.Context, string) {}

func (Noop) StartBatch(ctx context.Context, _ string) (context.Context, BatchSpan) {
	return ctx, noopSpan{}
}

func (Noop) BatchesDropped(context.Context, int) {}

type noopSpan struct{}

func (noopSpan) End(BatchResult) {}

// OrNoop rec 为 nil 时返回 Noop
func OrNoop(rec IntakeRecorder) IntakeRecorder {
	if rec == nil {
		return Noop{}
	}
	return rec
}

var _ IntakeRecorder = Noop{}
