package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xapm/pkg/config/xconf"
	"github.com/omeyang/xapm/pkg/lifecycle/xrun"
	"github.com/omeyang/xapm/pkg/observability/xapm"
	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xmetrics"
)

const (
	defaultAddr            = ":8080"
	defaultShutdownTimeout = 5 * time.Second
)

func createServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "运行带埋点的演示 HTTP 服务",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "监听地址", Value: defaultAddr},
			&cli.StringFlag{Name: "downstream", Usage: "/work 调用的下游 URL（可选）"},
			&cli.DurationFlag{Name: "shutdown-timeout", Usage: "优雅关闭超时", Value: defaultShutdownTimeout},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, src, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// 未配置 OpenTelemetry SDK 时全局 provider 为 noop
			rec, err := xmetrics.NewOTelRecorder()
			if err != nil {
				return err
			}
			agent, err := newAgent(cfg, xapm.WithRecorder(rec))
			if err != nil {
				return err
			}
			// 提前返回时也要关闭；Close 幂等
			defer agent.Close(context.WithoutCancel(ctx))

			if src.Path() != "" {
				w, err := xconf.Watch(src, func(c xconf.Config, err error) {
					applyReload(ctx, agent, c, err)
				})
				if err != nil {
					return err
				}
				w.Start()
				defer w.Stop()
			}

			server := &http.Server{
				Addr:              cmd.String("addr"),
				Handler:           newDemoHandler(agent, http.DefaultClient, cmd.String("downstream")),
				ReadHeaderTimeout: 5 * time.Second,
			}
			agent.Logger().Info(ctx, "xapmctl: serving", slog.String("addr", server.Addr))

			// 信号已由 run 转换为 ctx 取消
			err = xrun.Run(ctx,
				[]xrun.Option{xrun.WithName("xapmctl"), xrun.WithLogger(agent.Logger()), xrun.WithSignals()},
				xrun.HTTPServer(server, cmd.Duration("shutdown-timeout")),
				// 服务停止后排空异步上报队列
				xrun.Closer(agent.Close, cmd.Duration("shutdown-timeout")),
			)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// applyReload 配置文件变化后更新采样率，其他配置需要重启生效。
func applyReload(ctx context.Context, agent *xapm.Agent, c xconf.Config, err error) {
	logger := agent.Logger()
	if err != nil {
		logger.Warn(ctx, "xapmctl: config reload failed, keeping previous", xlog.Err(err))
		return
	}
	raw, ok := c.Get("sample_rate")
	if !ok {
		return
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err == nil {
		err = agent.SetSampleRate(rate)
	}
	if err != nil {
		logger.Warn(ctx, "xapmctl: ignoring sample_rate", slog.String("value", raw), xlog.Err(err))
		return
	}
	logger.Info(ctx, "xapmctl: sample rate updated", slog.Float64("sample_rate", rate))
}

// newDemoHandler 演示路由，全部经过 xapm.Middleware：
//
//	/        200
//	/work    一个 db span，配置了下游时再发起一次出站 HTTP 调用
//	/fail    记录错误事件并返回 500
func newDemoHandler(agent *xapm.Agent, client xapm.HTTPDoer, downstream string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /work", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if span, _, ok := xapm.StartSpanFromContext(ctx, "SELECT orders", "db", "sql"); ok {
			_, _ = span.DoSQL("SELECT * FROM orders WHERE paid", func() (int64, error) { return 3, nil })
		}
		status := http.StatusOK
		if downstream != "" {
			status = callDownstream(ctx, client, downstream)
		}
		w.WriteHeader(status)
		_, _ = fmt.Fprintln(w, "done")
	})
	mux.HandleFunc("GET /fail", func(w http.ResponseWriter, r *http.Request) {
		if tracer := xapm.TracerFromContext(r.Context()); tracer != nil {
			_, _ = tracer.CaptureError(errors.New("demo failure"), xapm.EventFromContext(r.Context()))
		}
		http.Error(w, "demo failure", http.StatusInternalServerError)
	})
	return xapm.Middleware(agent)(mux)
}

// callDownstream 出站调用失败时返回 502
func callDownstream(ctx context.Context, client xapm.HTTPDoer, url string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return http.StatusBadGateway
	}
	span, _, ok := xapm.StartSpanFromContext(ctx, "GET "+req.URL.Host, "external", "http")
	var resp *http.Response
	if ok {
		resp, err = span.DoHTTP(client, req)
	} else {
		resp, err = client.Do(req)
	}
	if err != nil {
		return http.StatusBadGateway
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return http.StatusBadGateway
	}
	return http.StatusOK
}
