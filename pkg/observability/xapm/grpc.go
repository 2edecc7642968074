package xapm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xtrace"
)

// =============================================================================
// gRPC 服务端
// =============================================================================

// UnaryServerInterceptor 为每个一元调用创建 Tracer 与事务（类型 request，
// 名称为完整方法名），结果记录为 gRPC 状态码名称。
//
// tracestate 溢出（或 strict 策略下 traceparent 非法）返回 InvalidArgument。
func UnaryServerInterceptor(agent *Agent) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		if agent == nil {
			return handler(ctx, req)
		}
		tracer, terr := agent.NewTracer(ctx, incomingCarrier(ctx))
		if terr != nil {
			if errors.Is(terr, xtrace.ErrValidation) {
				return nil, status.Error(codes.InvalidArgument, terr.Error())
			}
			agent.logger.Error(ctx, "xapm: tracer unavailable", xlog.Err(terr))
			return handler(ctx, req)
		}
		tx, terr := tracer.StartTransaction(info.FullMethod, TypeRequest)
		if terr != nil {
			_ = tracer.Close(ctx)
			return handler(ctx, req)
		}

		defer func() {
			rec := recover()
			code := status.Code(err)
			if rec != nil {
				code = codes.Internal
				_, _ = tracer.captureError(fmt.Errorf("panic: %v", rec), tx, 2)
			} else if err != nil {
				_, _ = tracer.CaptureError(err, tx)
			}
			_ = tx.SetResult(code.String())
			_ = tx.SetContext(map[string]any{"grpc": map[string]any{
				"method":      info.FullMethod,
				"status_code": code.String(),
			}})
			_ = tracer.Close(context.WithoutCancel(ctx))
			if rec != nil {
				panic(rec)
			}
		}()

		ctx = ContextWithEvent(ContextWithTracer(ctx, tracer), tx)
		return handler(ctx, req)
	}
}

func incomingCarrier(ctx context.Context) xtrace.Carrier {
	md, _ := metadata.FromIncomingContext(ctx)
	return xtrace.MetadataCarrier(md)
}

// =============================================================================
// gRPC 客户端
// =============================================================================

// UnaryClientInterceptor 为出站一元调用创建 external/grpc span，并把链路写入
// outgoing metadata。context 中没有 Tracer 时直接调用。
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		span, ctx, ok := StartSpanFromContext(ctx, method, "external", "grpc")
		if !ok {
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		defer span.End()
		_ = span.SetAction("call")

		t := span.tracer
		ctx = t.agent.codec.InjectOutgoingContext(ctx, t.outgoing(), span.ID())

		err := invoker(ctx, method, req, reply, cc, opts...)
		code := status.Code(err)
		if err != nil {
			_, _ = t.captureError(err, span, 1)
		}
		destination := ""
		if cc != nil {
			destination = cc.Target()
		}
		_ = span.SetContext(map[string]any{
			"grpc": map[string]any{
				"method":      strings.TrimPrefix(method, "/"),
				"status_code": code.String(),
			},
			"destination": map[string]any{"address": destination},
		})
		return err
	}
}
