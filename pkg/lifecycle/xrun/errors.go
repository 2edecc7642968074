package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 因收到系统信号而终止
	ErrSignal = errors.New("received signal")

	// ErrNilFunc 服务函数为 nil
	ErrNilFunc = errors.New("xrun: service func cannot be nil")

	// ErrNilServer HTTPServer 的 server 为 nil
	ErrNilServer = errors.New("xrun: server cannot be nil")
)

// SignalError 携带触发终止的信号
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("received signal %v", e.Signal)
}

func (e *SignalError) Unwrap() error {
	return ErrSignal
}
