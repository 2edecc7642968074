// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xid: 标识生成，基于 sonyflake 的唯一 ID 与 W3C trace/span id
//   - xlru: 有界 LRU 表，容量淘汰时回调
//   - xpool: 泛型 Worker Pool，可配置 worker/队列大小、优雅关闭
//   - xproc: 进程信息查询，PID、进程名称与命令行
package util
