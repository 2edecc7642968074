// Package xtrace 实现 W3C Trace Context 的解析、校验与渲染。
//
// # 职责
//
// xtrace 只处理传输层的追踪标识，不维护任何事件状态：
//   - traceparent：解析 {version}-{trace-id}-{parent-id}-{trace-flags}，渲染出站头
//   - tracestate：维护有序的厂商 key=value 列表（最近写入的排在最前）
//   - traceresponse：渲染返回给调用方的响应头
//   - 载体适配：http.Header、gRPC metadata.MD、消息头 map[string]string
//
// # 校验规则
//
// traceparent 按以下顺序校验，第一个失败项决定返回的错误：
//
//  1. 恰好 4 个以 "-" 分隔的字段           → ErrMalformedTraceparent
//  2. version == "00"                      → ErrInvalidVersion
//  3. trace-id 为 32 位小写十六进制且非全零 → ErrInvalidTraceID
//  4. parent-id 为 16 位小写十六进制且非全零 → ErrInvalidParentID
//  5. trace-flags 为 2 位十六进制           → ErrInvalidFlags
//
// 所有校验错误都包裹 [ErrValidation]，调用方可用 errors.Is 统一判定。
// 只接受小写十六进制，因此对任意合法输入 V 有 FormatTraceparent(ParseTraceparent(V)) == V。
//
// # 失败策略
//
// [Codec.Extract] 对 traceparent 校验失败的处理由 [Policy] 决定：
//   - PolicySoft（默认）：记录 warn 日志，标记为"无有效上游链路"，合成新的 trace-id
//   - PolicyStrict：直接返回校验错误
//
// tracestate 成员总数超过 32 在两种策略下都是硬错误（[ErrTracestateOverflow]），
// 它意味着上游厂商实现违反协议，而不是用户输入问题。单个非法成员静默跳过。
//
// # Tracestate 约束
//
//   - key 匹配 ^[0-9a-z_\-*/@]{1,256}$，且不得包含 ip、uid、token、auth
//   - value 非空，长度不超过 256，不含 "," 与 "="
//   - 成员数不超过 32，Add 超出时丢弃末尾
//   - String() 渲染的组合头不超过 512 字节，从末尾开始丢弃
//
// # 使用方式
//
//	codec := xtrace.NewCodec(xtrace.WithPolicy(xtrace.PolicySoft))
//	tc, err := codec.Extract(ctx, xtrace.HeaderCarrier(r.Header))
//	if err != nil {
//	    // 只可能是 tracestate 溢出（或 strict 策略下的 traceparent 错误）
//	}
//	codec.Inject(xtrace.HeaderCarrier(out.Header), tc, currentSpanID)
package xtrace
