package xrun

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xapm/pkg/observability/xlog"
)

// Group 协调一组服务的并发运行与关闭。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *options
}

// NewGroup 创建 Group，返回的 ctx 在任一服务出错或 Cancel 时取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{eg: eg, ctx: egCtx, causeCtx: causeCtx, cancel: cancel, opts: o}, egCtx
}

// Go 启动一个服务
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		attrs := []slog.Attr{slog.String("group", g.opts.name), xlog.Component(name)}
		g.opts.logger.Debug(g.ctx, "service starting", attrs...)
		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.opts.logger.Warn(g.ctx, "service exited with error", append(attrs, xlog.Err(err))...)
		}
		return err
	})
}

// Cancel 以 cause 取消所有服务，Wait 将返回 cause。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Wait 等待所有服务退出。context.Canceled 被过滤，显式 cause 被保留。
func (g *Group) Wait() error {
	defer g.cancel(nil)
	err := g.eg.Wait()

	if g.causeCtx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		if cause := context.Cause(g.causeCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
		return nil
	}
	return err
}

// Run 运行服务并监听终止信号
func Run(ctx context.Context, opts []Option, services ...func(ctx context.Context) error) error {
	g, _ := NewGroup(ctx, opts...)

	if len(g.opts.signals) > 0 || g.opts.sigCh != nil {
		g.Go("signal", func(ctx context.Context) error {
			ch := g.opts.sigCh
			if ch == nil {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, g.opts.signals...)
				defer signal.Stop(sigCh)
				ch = sigCh
			}
			select {
			case sig := <-ch:
				g.opts.logger.Info(ctx, "received signal", slog.String("signal", sig.String()))
				g.Cancel(&SignalError{Signal: sig})
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	for i, svc := range services {
		g.Go("service-"+strconv.Itoa(i), svc)
	}
	return g.Wait()
}

// HTTPServerInterface *http.Server 满足此接口
type HTTPServerInterface interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServer 包装为服务函数：ctx 取消时优雅关闭，shutdownTimeout <= 0 表示不限时。
func HTTPServer(server HTTPServerInterface, shutdownTimeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if server == nil {
			return ErrNilServer
		}
		shutdownErr := make(chan error, 1)
		listenDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				sctx := context.WithoutCancel(ctx)
				if shutdownTimeout > 0 {
					var cancel context.CancelFunc
					sctx, cancel = context.WithTimeout(sctx, shutdownTimeout)
					defer cancel()
				}
				shutdownErr <- server.Shutdown(sctx)
			case <-listenDone:
			}
		}()

		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			select {
			case e := <-shutdownErr:
				return e
			case <-ctx.Done():
				return <-shutdownErr
			default:
				close(listenDone)
				return nil
			}
		}
		close(listenDone)
		return err
	}
}

// Closer 包装为服务函数：阻塞到 ctx 取消，然后在 timeout 内调用 closeFn。
// 用于让 agent 等需要排空队列的组件随 Group 一起关闭；timeout <= 0 表示不限时。
func Closer(closeFn func(ctx context.Context) error, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if closeFn == nil {
			return ErrNilFunc
		}
		<-ctx.Done()
		cctx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(cctx, timeout)
			defer cancel()
		}
		return closeFn(cctx)
	}
}
