package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Builder 日志配置构建器（first-error-wins）。
type Builder struct {
	output       io.Writer
	levelVar     *slog.LevelVar
	format       string
	addSource    bool
	enableEnrich bool
	fixed        []slog.Attr
	err          error
}

// New 创建配置构建器，默认 stderr、Info、text、启用 enrich。
func New() *Builder {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	return &Builder{
		output:       os.Stderr,
		levelVar:     levelVar,
		format:       "text",
		enableEnrich: true,
	}
}

// SetOutput 设置输出目标
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil {
		b.output = w
	}
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 通过字符串设置日志级别
func (b *Builder) SetLevelString(s string) *Builder {
	if b.err != nil {
		return b
	}
	level, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json，空值按 text。
func (b *Builder) SetFormat(format string) *Builder {
	if b.err != nil {
		return b
	}
	switch normalized := strings.ToLower(strings.TrimSpace(format)); normalized {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = normalized
	default:
		b.err = fmt.Errorf("xlog: unknown format %q", format)
	}
	return b
}

// SetAddSource 是否记录源码位置
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetEnrich 是否从 context 注入追踪字段
func (b *Builder) SetEnrich(enable bool) *Builder {
	b.enableEnrich = enable
	return b
}

// SetService 为每条日志附加 service.name 与 service.environment。
// 在 Build 时一次性注入，不进入热路径。
func (b *Builder) SetService(name, environment string) *Builder {
	if name != "" {
		b.fixed = append(b.fixed, slog.String(KeyServiceName, name))
	}
	if environment != "" {
		b.fixed = append(b.fixed, slog.String(KeyEnvironment, environment))
	}
	return b
}

// Build 构建 Logger。
// 返回的 cleanup 在输出目标支持 Sync 时刷盘，可安全重复调用。
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{
		Level:     b.levelVar,
		AddSource: b.addSource,
	}
	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}
	if b.enableEnrich {
		enriched, err := NewEnrichHandler(handler)
		if err != nil {
			return nil, nil, err
		}
		handler = enriched
	}
	if len(b.fixed) > 0 {
		handler = handler.WithAttrs(b.fixed)
	}

	logger := &xlogger{
		handler:    handler,
		levelVar:   b.levelVar,
		addSource:  b.addSource,
		errorCount: new(atomic.Uint64),
	}
	return logger, b.createCleanup(), nil
}

type syncer interface {
	Sync() error
}

func (b *Builder) createCleanup() func() error {
	var once sync.Once
	out := b.output
	return func() error {
		var err error
		once.Do(func() {
			// stderr/stdout 的 Sync 在部分平台返回 EINVAL，忽略
			if s, ok := out.(syncer); ok && out != os.Stderr && out != os.Stdout {
				err = s.Sync()
			}
		})
		return err
	}
}
