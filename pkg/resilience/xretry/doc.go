// Package xretry 基于 [avast/retry-go/v5] 的重试。
//
// Do/DoWithData 在 retry-go 之上加入统一的错误判定：
// retry-go 的 Unrecoverable 错误与实现 Retryable() bool 且返回 false 的错误
// （例如 xbreaker.BreakerError、xintake 的 4xx 错误）不会被重试。
//
// 调用方传入 RetryIf 会覆盖该判定。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
