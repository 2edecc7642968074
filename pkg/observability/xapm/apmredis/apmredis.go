// Package apmredis 为 go-redis v9 客户端记录缓存 span。
//
// 每条命令（或一次 pipeline）在 context 中的 Tracer 下产生一个
// type=cache、subtype=redis 的 span，context.db.statement 为命令名与首个 key。
// context 中没有 Tracer 时 hook 直接透传。redis.Nil 不视为错误。
//
//	rdb := redis.NewClient(&redis.Options{Addr: addr})
//	apmredis.Instrument(rdb)
package apmredis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xapm/pkg/observability/xapm"
)

const (
	// SpanType 缓存 span 的类型
	SpanType = "cache"
	// DefaultSubtype 默认子类型
	DefaultSubtype = "redis"
)

// Option hook 选项
type Option func(*hook)

// WithSubtype 设置 span 子类型（如 "valkey"）
func WithSubtype(subtype string) Option {
	return func(h *hook) {
		if subtype != "" {
			h.subtype = subtype
		}
	}
}

type hook struct {
	subtype string
}

// NewHook 创建记录缓存 span 的 redis.Hook
func NewHook(opts ...Option) redis.Hook {
	h := &hook{subtype: DefaultSubtype}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Instrument 为客户端添加 hook
func Instrument(client redis.UniversalClient, opts ...Option) {
	client.AddHook(NewHook(opts...))
}

func (h *hook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *hook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		op := strings.ToUpper(cmd.Name())
		span, spanCtx, ok := xapm.StartSpanFromContext(ctx, op, SpanType, h.subtype)
		if !ok {
			return next(ctx, cmd)
		}
		_ = span.SetAction("query")

		var cmdErr error
		_ = span.DoCache(op, firstKey(cmd), func() error {
			cmdErr = next(spanCtx, cmd)
			return reportable(cmdErr)
		})
		return cmdErr
	}
}

func (h *hook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		span, spanCtx, ok := xapm.StartSpanFromContext(ctx, "PIPELINE", SpanType, h.subtype)
		if !ok {
			return next(ctx, cmds)
		}
		_ = span.SetAction("pipeline")

		names := make([]string, len(cmds))
		for i, cmd := range cmds {
			names[i] = strings.ToUpper(cmd.Name())
		}
		var cmdErr error
		_ = span.DoCache(fmt.Sprintf("PIPELINE[%d]", len(cmds)), strings.Join(names, " "), func() error {
			cmdErr = next(spanCtx, cmds)
			return reportable(cmdErr)
		})
		return cmdErr
	}
}

// reportable redis.Nil 表示 key 不存在，不记录为错误事件。
func reportable(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func firstKey(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return ""
	}
	if s, ok := args[1].(string); ok {
		return s
	}
	return fmt.Sprint(args[1])
}
