package xlog

import (
	"log/slog"
	"time"
)

// 标准字段名
const (
	KeyError       = "error"
	KeyStack       = "stack"
	KeyDuration    = "duration"
	KeyCount       = "count"
	KeyStatusCode  = "status_code"
	KeyComponent   = "component"
	KeyServiceName = "service.name"
	KeyEnvironment = "service.environment"
	KeyEventID     = "event.id"
	KeyEventType   = "event.type"
	KeyBatchID     = "batch_id"
	KeyServerURL   = "server_url"
)

// Err 错误属性；err 为 nil 时返回空属性（被 slog 忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 人类可读的耗时属性（如 "1.5s"）。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Count 计数属性
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// StatusCode HTTP 状态码属性
func StatusCode(code int) slog.Attr {
	return slog.Int(KeyStatusCode, code)
}

// Component 组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// EventID APM 事件 id 属性
func EventID(id string) slog.Attr {
	return slog.String(KeyEventID, id)
}

// EventType APM 事件类型属性（transaction/span/error/metadata）
func EventType(t string) slog.Attr {
	return slog.String(KeyEventType, t)
}

// BatchID intake 批次序号属性
func BatchID(id int64) slog.Attr {
	return slog.Int64(KeyBatchID, id)
}

// ServerURL collector 地址属性
func ServerURL(u string) slog.Attr {
	return slog.String(KeyServerURL, u)
}
