// Package xsampling 事务采样决策。
//
// RatioSampler 以 trace id 的 xxhash 值做一致性采样：同一 trace 在所有服务、
// 所有进程中得到相同结论。trace id 为空时回退到随机采样。
// 采样率可在运行时通过 SetRate 原子更新（配置热加载）。
package xsampling
