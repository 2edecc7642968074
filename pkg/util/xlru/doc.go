// Package xlru 提供有界的 LRU 表。
//
// xlru 基于 github.com/hashicorp/golang-lru/v2 封装，用来保存生命周期由外部事件
// 结束、但结束事件可能永远不到达的条目（例如等待应答的命令）。表满时淘汰最久未访问的
// 条目并调用淘汰回调，调用方据此收尾被丢弃的条目。
//
// # 注意事项
//
//   - Size 是条目数量，必须 > 0 且 ≤ 16,777,216
//   - 淘汰回调在 Table 的锁内同步执行，严禁在回调中调用 Add/Take/Purge
//   - Take 取出的条目不会触发淘汰回调
//   - Purge 对剩余条目逐个调用淘汰回调
package xlru
