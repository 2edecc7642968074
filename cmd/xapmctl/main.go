// xapmctl 是 xapm agent 的命令行工具。
//
// 用法:
//
//	xapmctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      配置文件路径（.yaml/.yml/.json），为空时只读环境变量
//	    --env-prefix  环境变量覆盖前缀（默认: XAPM_）
//	    --server-url  覆盖配置中的 server_url
//	    --service     覆盖配置中的 service_name
//
// 命令:
//
//	parse <traceparent>   解析并校验 traceparent（可带 --tracestate）
//	ping                  检查 collector 是否可达
//	send                  上报一个演示事务（--dry-run 时输出 NDJSON 而不发送）
//	serve                 运行带埋点的演示 HTTP 服务，配置文件变化时热更新采样率
//
// 退出码:
//
//	0: 成功
//	1: 执行失败（collector 不可达、上报失败等）
//	2: 参数或配置错误
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags "-X main.Version=..." 注入）
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xapmctl",
		Usage:   "xapm agent 命令行工具",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
			},
			&cli.StringFlag{
				Name:  "env-prefix",
				Usage: "环境变量覆盖前缀，为空时不读取环境变量",
				Value: defaultEnvPrefix,
			},
			&cli.StringFlag{
				Name:  "server-url",
				Usage: "覆盖 server_url",
			},
			&cli.StringFlag{
				Name:  "service",
				Usage: "覆盖 service_name",
			},
		},
		Commands: []*cli.Command{
			createParseCommand(),
			createPingCommand(),
			createSendCommand(),
			createServeCommand(),
		},
		// 退出码由 run 统一映射，不让 urfave/cli 调用 os.Exit
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return exitCode(createApp().Run(ctx, args))
}

// exitCode 错误到退出码的映射
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}
