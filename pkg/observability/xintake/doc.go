// Package xintake 将 APM 事件以 NDJSON 批次上报到 collector。
//
// 组成：
//
//   - [Pipeline]：单个工作单元的事件缓冲区。AddEvent 追加（metadata 前插）
//     序列化后的文档，Push 取出整个批次交给 [Sender] 并无条件清空缓冲区。
//   - [Client]：同步 Sender。发送在独立 goroutine 上进行，调用方最多等待
//     MaxPendingWait，超时后取消请求并放弃该批次（至多一次，不重试，不持久化）。
//   - [AsyncSender]：异步 Sender。批次进入有界队列由后台 worker 调用 Client
//     发送，队列满时丢弃最旧的批次。
//   - [Transport]：HTTP 传输抽象，默认实现 [RestyTransport]
//     （go-resty，关闭重试，熔断保护，可选 gzip）。
//
// 协议：
//
//	POST {server_url}/intake/v2/events
//	Content-Type: application/x-ndjson
//	Authorization: Bearer {secret_token}   (配置了 token 时)
//	User-Agent: xapm-go/{version}
//
// 上报失败只记录日志和指标，不影响被观测的业务调用。
package xintake
