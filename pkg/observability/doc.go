// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xapm: APM 埋点核心，Agent/Tracer、事件注册表、HTTP/gRPC 中间件
//   - xtrace: W3C traceparent/tracestate 解析、校验与传播
//   - xintake: 事件批次的序列化、压缩与投递
//   - xsampling: 采样策略
//   - xlog: 结构化日志，基于 log/slog 扩展
//   - xmetrics: 统一可观测性接口，OpenTelemetry 实现
//
// 设计原则：
//   - 遵循 W3C Trace Context 规范
//   - 自动从 context 中提取追踪信息注入日志
//   - 每个请求持有独立的 Tracer，不使用全局注册表
package observability
