// Package xbreaker 基于 [sony/gobreaker/v2] 的熔断器。
//
// intake 上报路径用它保护 APM server：连续失败达到阈值后熔断，
// 熔断期间的上报直接失败（快速放弃本批事件），超时后半开探测。
//
// 熔断器错误被包装为 BreakerError，其 Retryable() 返回 false，
// 与 xretry 组合时不会对熔断错误退避重试。
//
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
package xbreaker
