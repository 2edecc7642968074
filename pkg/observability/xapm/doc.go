// Package xapm APM 埋点核心：为一个工作单元构建带时间的事件树，
// 通过 W3C trace-context 跨进程传播链路，并经 xintake 批量上报。
//
// 对象关系：
//
//   - [Agent]：进程级，持有配置、日志、采样器、传输与指标，构造时注入。
//   - [Tracer]：工作单元级（一次请求或一个批处理任务），持有独立的
//     [Registry] 与事件缓冲区，不跨工作单元共享。
//   - 事件：[Transaction]（根）、[Span]、[ErrorEvent]，以及每个 Tracer
//     首次上报时前插的 metadata 文档。
//
// 生命周期：Transaction/Span 构造即 started；End 幂等，计算耗时、更新注册表
// 并把事件序列化进缓冲区恰好一次。结束后的事件不可再修改，SetContext 返回
// [ErrEventEnded]。Tracer.Close 结束所有未结束的事件后 Flush，Flush 至多发送
// 一个批次。
//
// 基本用法：
//
//	agent, err := xapm.NewAgent(cfg)
//	...
//	tracer, err := agent.NewTracer(ctx, xtrace.HeaderCarrier(r.Header))
//	defer tracer.Close(ctx)
//	tx, _ := tracer.StartTransaction("GET /orders", xapm.TypeRequest)
//	span, _ := tracer.StartSpan(tx, "SELECT orders", "db", "mysql")
//	rows, err := span.DoSQL("SELECT * FROM orders", query)
//
// HTTP 服务使用 [Middleware]，gRPC 使用 [UnaryServerInterceptor] 与
// [UnaryClientInterceptor]。埋点失败只记录日志，不改变被观测调用的结果。
package xapm
