package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xapm/pkg/config/xconf"
	"github.com/omeyang/xapm/pkg/observability/xapm"
	"github.com/omeyang/xapm/pkg/observability/xintake"
	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xtrace"
)

const defaultEnvPrefix = "XAPM_"

// usageError 参数或配置错误，退出码 2
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitError 命令已输出结果，只需设置退出码
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// =============================================================================
// 配置
// =============================================================================

// loadConfig 读取配置文件（可选）与环境变量，再应用命令行覆盖。
func loadConfig(cmd *cli.Command) (xapm.Config, xconf.Config, error) {
	var opts []xconf.Option
	if prefix := cmd.String("env-prefix"); prefix != "" {
		opts = append(opts, xconf.WithEnvPrefix(prefix))
	}

	var (
		src xconf.Config
		err error
	)
	if path := cmd.String("config"); path != "" {
		src, err = xconf.New(path, opts...)
	} else {
		src, err = xconf.NewFromBytes(nil, xconf.FormatYAML, opts...)
	}
	if err != nil {
		return xapm.Config{}, nil, &usageError{err}
	}

	cfg := xapm.DefaultConfig()
	if err := src.Unmarshal("", &cfg); err != nil {
		return cfg, nil, &usageError{err}
	}
	if v := cmd.String("server-url"); v != "" {
		cfg.ServerURL = v
	}
	if v := cmd.String("service"); v != "" {
		cfg.ServiceName = v
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, &usageError{err}
	}
	return cfg, src, nil
}

func newAgent(cfg xapm.Config, opts ...xapm.Option) (*xapm.Agent, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	agent, err := xapm.NewAgent(cfg, append([]xapm.Option{xapm.WithLogger(logger)}, opts...)...)
	if errors.Is(err, xintake.ErrMissingServerURL) {
		return nil, &usageError{err}
	}
	return agent, err
}

func newLogger(cfg xapm.Config) (xlog.Logger, error) {
	logger, _, err := xlog.New().
		SetLevel(xlog.AgentLevel(cfg.Debug)).
		SetService(cfg.ServiceName, cfg.Environment).
		Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// =============================================================================
// parse
// =============================================================================

func createParseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "解析并校验 traceparent",
		ArgsUsage: "<traceparent>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "tracestate",
				Usage: "tracestate 头（可重复）",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{errors.New("parse 需要一个 traceparent 参数")}
			}
			return cmdParse(cmd.Root().Writer, cmd.Args().First(), cmd.StringSlice("tracestate"))
		},
	}
}

func cmdParse(w io.Writer, traceparent string, tracestate []string) error {
	tc, err := xtrace.ParseTraceparent(traceparent)
	if err != nil {
		fmt.Fprintf(w, "invalid: %v\n", err)
		return &exitError{code: 1}
	}
	fmt.Fprintf(w, "version:   %s\n", tc.Version)
	fmt.Fprintf(w, "trace-id:  %s\n", tc.TraceID)
	fmt.Fprintf(w, "parent-id: %s\n", tc.ParentID)
	fmt.Fprintf(w, "flags:     %s (sampled=%t)\n", tc.Flags, tc.IsRecordRequest())

	if len(tracestate) == 0 {
		return nil
	}
	state, err := xtrace.ParseTracestate(tracestate...)
	if err != nil {
		fmt.Fprintf(w, "invalid tracestate: %v\n", err)
		return &exitError{code: 1}
	}
	for _, m := range state.Members() {
		fmt.Fprintf(w, "state:     %s=%s\n", m.Key, m.Value)
	}
	return nil
}

// =============================================================================
// ping
// =============================================================================

func createPingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "检查 collector 是否可达",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			agent, err := newAgent(cfg)
			if err != nil {
				return err
			}
			defer agent.Close(context.WithoutCancel(ctx))
			return cmdPing(ctx, cmd.Root().Writer, agent)
		},
	}
}

func cmdPing(ctx context.Context, w io.Writer, agent *xapm.Agent) error {
	start := time.Now()
	resp, err := agent.Ping(ctx)
	if err != nil {
		fmt.Fprintf(w, "%s unreachable: %v\n", agent.Config().ServerURL, err)
		return &exitError{code: 1}
	}
	fmt.Fprintf(w, "%s ok: HTTP %d in %s\n", agent.Config().ServerURL, resp.StatusCode,
		time.Since(start).Round(time.Millisecond))
	return nil
}

// =============================================================================
// send
// =============================================================================

func createSendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "上报一个演示事务",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "事务名称，为空时使用默认名称"},
			&cli.IntFlag{Name: "spans", Usage: "子 span 数量", Value: 2},
			&cli.StringFlag{Name: "error", Usage: "附带一个错误事件"},
			&cli.StringFlag{Name: "traceparent", Usage: "继续上游链路"},
			&cli.BoolFlag{Name: "dry-run", Usage: "输出 NDJSON 而不发送"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var mem *xintake.MemoryTransport
			var opts []xapm.Option
			// dry-run 不需要 collector
			if cmd.Bool("dry-run") {
				mem = xintake.NewMemoryTransport()
				opts = append(opts, xapm.WithTransport(mem))
			}
			agent, err := newAgent(cfg, opts...)
			if err != nil {
				return err
			}
			defer agent.Close(context.WithoutCancel(ctx))

			req := sendRequest{
				name:        cmd.String("name"),
				spans:       int(cmd.Int("spans")),
				errMessage:  cmd.String("error"),
				traceparent: cmd.String("traceparent"),
			}
			tracer, err := cmdSend(ctx, agent, req)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			if mem != nil {
				for _, b := range mem.Batches() {
					_, _ = w.Write(b)
				}
				return nil
			}
			tc := tracer.TraceContext()
			fmt.Fprintf(w, "sent trace %s (sampled=%t) to %s\n", tc.TraceID, tracer.Sampled(), agent.Transport().Endpoint())
			return nil
		},
	}
}

type sendRequest struct {
	name        string
	spans       int
	errMessage  string
	traceparent string
}

// cmdSend 构造一个事务及其子 span 并上报
func cmdSend(ctx context.Context, agent *xapm.Agent, req sendRequest) (*xapm.Tracer, error) {
	var carrier xtrace.Carrier
	if req.traceparent != "" {
		carrier = xtrace.MapCarrier{xtrace.HeaderTraceparent: req.traceparent}
	}
	tracer, err := agent.NewTracer(ctx, carrier)
	if err != nil {
		return nil, &usageError{err}
	}
	tx, err := tracer.StartTransaction(req.name, "")
	if err != nil {
		return nil, err
	}
	_ = tx.SetContext(map[string]any{"custom": map[string]any{"source": "xapmctl"}})

	for i := range max(req.spans, 0) {
		span, err := tracer.StartSpan(tx, fmt.Sprintf("step-%d", i+1), "app", "internal")
		if err != nil {
			return nil, err
		}
		span.End()
	}
	if msg := strings.TrimSpace(req.errMessage); msg != "" {
		if _, err := tracer.CaptureError(errors.New(msg), tx); err != nil {
			return nil, err
		}
	}
	if err := tracer.Close(ctx); err != nil {
		return tracer, err
	}
	return tracer, nil
}
