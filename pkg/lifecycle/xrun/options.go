package xrun

import (
	"os"
	"syscall"

	"github.com/omeyang/xapm/pkg/observability/xlog"
)

// Option Group 选项
type Option func(*options)

type options struct {
	logger  xlog.Logger
	name    string
	signals []os.Signal
	sigCh   <-chan os.Signal
}

func defaultOptions() *options {
	return &options{
		logger:  xlog.Default(),
		name:    "xrun",
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT},
	}
}

// WithLogger 设置日志记录器，nil 忽略。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName 设置 Group 名称，出现在日志中。
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSignals 覆盖监听的信号，空列表表示不监听信号。
func WithSignals(signals ...os.Signal) Option {
	copied := append([]os.Signal(nil), signals...)
	return func(o *options) {
		o.signals = copied
	}
}

// withSignalChan 测试用信号来源
func withSignalChan(ch <-chan os.Signal) Option {
	return func(o *options) {
		o.sigCh = ch
	}
}
