package xapm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xtrace"
)

// HeaderTraceResponse 响应中回传链路标识的头
const HeaderTraceResponse = "traceresponse"

// MiddlewareOption HTTP 中间件选项
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	name func(*http.Request) string
}

// WithTransactionName 自定义事务命名，默认 "METHOD /path"。
func WithTransactionName(fn func(*http.Request) string) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.name = fn
		}
	}
}

// Middleware 为每个请求创建 Tracer 与事务。
//
// 请求头中的 tracestate 超过 32 个成员（或 strict 策略下 traceparent 非法）时
// 直接返回 400。响应写出 traceresponse 头；处理结束（包括 panic）时记录结果、
// 关闭 Tracer 并上报，panic 随后重新抛出。
func Middleware(agent *Agent, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		name: func(r *http.Request) string { return r.Method + " " + r.URL.Path },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if agent == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tracer, err := agent.NewTracer(ctx, xtrace.HeaderCarrier(r.Header))
			if err != nil {
				if errors.Is(err, xtrace.ErrValidation) {
					agent.logger.Warn(ctx, "xapm: rejected trace context", xlog.Err(err))
					http.Error(w, "invalid trace context", http.StatusBadRequest)
					return
				}
				agent.logger.Error(ctx, "xapm: tracer unavailable", xlog.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			tx, err := tracer.StartTransaction(cfg.name(r), TypeRequest)
			if err != nil {
				agent.logger.Error(ctx, "xapm: start transaction failed", xlog.Err(err))
				_ = tracer.Close(ctx)
				next.ServeHTTP(w, r)
				return
			}
			_ = tx.SetContext(requestContext(r))

			w.Header().Set(HeaderTraceResponse, tracer.TraceResponseHeader())
			rw := &statusWriter{ResponseWriter: w}

			defer func() {
				rec := recover()
				status := rw.Status()
				if rec != nil {
					status = http.StatusInternalServerError
					_, _ = tracer.captureError(fmt.Errorf("panic: %v", rec), tx, 2)
				}
				_ = tx.SetResult(fmt.Sprintf("HTTP %dxx", status/100))
				_ = tx.SetContext(map[string]any{"response": map[string]any{
					"status_code": status,
					"finished":    rec == nil,
				}})
				_ = tracer.Close(context.WithoutCancel(ctx))
				if rec != nil {
					panic(rec)
				}
			}()

			ctx = ContextWithEvent(ContextWithTracer(ctx, tracer), tx)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

func requestContext(r *http.Request) map[string]any {
	req := map[string]any{
		"method": r.Method,
		"url": map[string]any{
			"full":     fullURL(r),
			"pathname": r.URL.Path,
			"search":   r.URL.RawQuery,
		},
		"http_version": strconv.Itoa(r.ProtoMajor) + "." + strconv.Itoa(r.ProtoMinor),
	}
	headers := map[string]any{}
	for _, name := range []string{"User-Agent", "Content-Type", "Host"} {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}
	if r.Host != "" {
		headers["Host"] = r.Host
	}
	if len(headers) > 0 {
		req["headers"] = headers
	}
	return map[string]any{"request": req}
}

func fullURL(r *http.Request) string {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	return u.Redacted()
}

// statusWriter 记录响应状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Status 已写出的状态码，未写出时为 200。
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap 供 http.ResponseController 访问底层 ResponseWriter
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
