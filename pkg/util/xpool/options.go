package xpool

import "github.com/omeyang/xapm/pkg/observability/xlog"

// Option Pool 可选配置
type Option func(*options)

type options struct {
	logger xlog.Logger
	name   string
	onDrop func(n int)
}

// WithLogger 设置日志记录器，默认使用 xlog 全局 logger。nil 忽略。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置 pool 名称，出现在日志的 component 字段。
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithDropHook 设置任务被丢弃（队列满或 drop-oldest 淘汰）时的回调。
func WithDropHook(fn func(n int)) Option {
	return func(o *options) {
		o.onDrop = fn
	}
}
