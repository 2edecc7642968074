// Package xrun 基于 errgroup 的服务生命周期管理。
//
// 任一服务返回错误或收到终止信号时，所有服务通过 ctx 收到取消信号。
// 信号退出时 Run 返回 *SignalError（errors.Is(err, ErrSignal) 为 true）。
//
//	err := xrun.Run(ctx, nil,
//	    xrun.HTTPServer(srv, 5*time.Second),
//	    func(ctx context.Context) error { <-ctx.Done(); return agent.Close(context.Background()) },
//	)
package xrun
