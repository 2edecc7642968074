// Package xmetrics intake 管道的可观测性（OpenTelemetry metrics + tracing）。
//
// 业务代码只依赖 IntakeRecorder 接口，默认实现基于 OpenTelemetry：
//
//	rec, _ := xmetrics.NewOTelRecorder(xmetrics.WithMeterProvider(mp))
//	ctx, span := rec.StartBatch(ctx, serverURL)
//	defer span.End(xmetrics.BatchResult{Outcome: xmetrics.OutcomeSent, Events: n})
//
// # 指标
//
//   - xapm.intake.events：进入缓冲区的事件数，属性 event.type
//   - xapm.intake.batches：批次数，属性 outcome（sent/failed/abandoned/dropped）
//   - xapm.intake.duration：批次发送耗时（秒），属性 outcome
//   - xapm.intake.bytes：已发送的请求体字节数
//
// StartBatch 会以 xctx 中的 trace_id/span_id 作为远端父级创建 client span，
// 使上报请求本身也能挂在业务链路下。
package xmetrics
