package xapm

import "errors"

var (
	// ErrInvalidConfig 配置非法
	ErrInvalidConfig = errors.New("xapm: invalid config")

	// ErrDuplicateID 显式指定的事件 id 已注册
	ErrDuplicateID = errors.New("xapm: duplicate event id")

	// ErrParentNotFound 父事件未注册，或注册表父链断裂
	ErrParentNotFound = errors.New("xapm: parent event not found")

	// ErrEventNotFound 事件未注册
	ErrEventNotFound = errors.New("xapm: event not found")

	// ErrEventEnded 事件已结束，不可再修改
	ErrEventEnded = errors.New("xapm: event already ended")

	// ErrSerialization 事件序列化失败，只影响该事件
	ErrSerialization = errors.New("xapm: event serialization failed")

	// ErrTracerClosed Tracer 已关闭
	ErrTracerClosed = errors.New("xapm: tracer closed")

	// ErrNilError CaptureError 传入 nil
	ErrNilError = errors.New("xapm: captured error cannot be nil")
)
