// Package xpool 提供有界队列的泛型 worker pool。
//
// 两种提交语义：
//   - Submit：队列满时返回 ErrQueueFull，新任务被拒绝
//   - SubmitDropOldest：队列满时丢弃最早入队的任务，为新任务腾出位置
//
// Submit 与 SubmitDropOldest 永不阻塞。handler 的 panic 会被恢复并记录，
// 不影响其他任务。
//
// Close 等待队列耗尽；Shutdown(ctx) 在 ctx 到期时提前返回，
// 残留 worker 继续处理剩余任务，可通过 Done() 等待其结束。
// 不可在 handler 内调用 Close/Shutdown。
package xpool
