// Package xlog 基于 log/slog 的结构化日志。
//
// # 核心功能
//
//   - Builder 模式配置（输出目标、级别、格式）
//   - 自动从 context 注入 trace_id、span_id、transaction_id、trace_flags（EnrichHandler，默认启用）
//   - 固定的 service 属性（SetService），便于在多服务日志中区分上报方
//   - 动态级别调整（agent 的 debug 开关在运行时切换）
//   - 全局 Logger 便利函数
//
// 所有方法强制传入 context，签名只接受 slog.Attr：
//
//	logger, cleanup, err := xlog.New().
//	    SetFormat("json").
//	    SetService("checkout", "dev").
//	    Build()
//	defer cleanup()
//	logger.Warn(ctx, "xintake: batch abandoned", xlog.BatchID(id), xlog.Err(err))
//
// 对启用 enrich 的 logger 调用 WithGroup 时，注入字段会被归入 group 下，
// 这是 slog handler 架构的限制。
package xlog

import (
	"context"
	"log/slog"
)

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// Stack 记录带当前 goroutine 调用栈的错误日志
	Stack(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回带额外属性的派生 Logger，共享父级的 LevelVar
	With(attrs ...slog.Attr) Logger

	// WithGroup 返回带分组的派生 Logger
	WithGroup(name string) Logger
}

// Leveler 级别控制接口，与 Logger 分离，通过类型断言获取。
type Leveler interface {
	SetLevel(level Level)
	GetLevel() Level
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel Build() 的返回类型。
type LoggerWithLevel interface {
	Logger
	Leveler
}
