// Package xid 提供 APM 事件所需的标识生成能力。
//
// # 事件 ID
//
// 事件 ID 是密码学随机字节的小写十六进制编码，长度为 2*byteLen：
//
//	id, err := xid.Generate(8)   // span/transaction/error id，16 个十六进制字符
//	tid, err := xid.TraceID()    // 32 个十六进制字符，保证非全零
//
// 需要在某个作用域（如事件注册表）内唯一时，使用 GenerateUnique，
// 由调用方提供 exists 判定；重试次数有上限，超过后返回 [ErrExhausted]。
//
// 测试中可通过 [WithReader] 注入确定性随机源：
//
//	gen := xid.NewGenerator(xid.WithReader(bytes.NewReader(seed)))
//
// # Agent 临时 ID
//
// [EphemeralID] 返回一个 UUIDv4，用作 metadata 中 service.agent.ephemeral_id，
// 每个进程生成一次。
//
// # 批次序号
//
// [Sequence] 基于 Sonyflake 生成单调递增的 int64，用于在日志中关联同一次
// intake 推送的各条记录。它不参与任何 W3C 标识。
package xid
