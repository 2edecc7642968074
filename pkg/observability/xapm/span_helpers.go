package xapm

import (
	"net/http"
	"strings"

	"github.com/omeyang/xapm/pkg/observability/xtrace"
)

// HTTPDoer 发送 HTTP 请求，*http.Client 满足此接口。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// 以下辅助方法包装一次 I/O 调用：自动填充上下文，调用失败时以 span 为父记录
// 错误事件，并且无论成功、失败或 panic 都会结束 span。返回值就是被包装调用的结果。

// DoHTTP 注入链路头后发送请求，记录 context.http。
// 网络错误时 status_code 记为配置的 failure_status_code。
func (s *Span) DoHTTP(doer HTTPDoer, req *http.Request) (*http.Response, error) {
	defer s.End()

	if req.Header == nil {
		req.Header = make(http.Header)
	}
	_ = s.tracer.InjectHeaders(xtrace.HeaderCarrier(req.Header), s)

	resp, err := doer.Do(req)
	status := s.tracer.agent.cfg.FailureStatusCode
	if err != nil {
		_, _ = s.tracer.captureError(err, s, 1)
	} else {
		status = resp.StatusCode
	}

	httpCtx := map[string]any{
		"method":      req.Method,
		"status_code": status,
	}
	if req.URL != nil {
		httpCtx["url"] = req.URL.Redacted()
	}
	_ = s.SetContext(map[string]any{"http": httpCtx})
	return resp, err
}

// DoSQL 执行一条语句，fn 返回影响行数。db.type 取 span 子类型，为空时为 "sql"。
func (s *Span) DoSQL(statement string, fn func() (int64, error)) (int64, error) {
	defer s.End()

	rows, err := fn()
	if err != nil {
		_, _ = s.tracer.captureError(err, s, 1)
	}
	dbType := s.subtype
	if dbType == "" {
		dbType = "sql"
	}
	_ = s.SetContext(map[string]any{"db": map[string]any{
		"type":          dbType,
		"statement":     statement,
		"rows_affected": rows,
	}})
	return rows, err
}

// DoCache 执行一次缓存操作，记录 context.db{type: cache}。
func (s *Span) DoCache(op, key string, fn func() error) error {
	defer s.End()

	err := fn()
	if err != nil {
		_, _ = s.tracer.captureError(err, s, 1)
	}
	_ = s.SetContext(map[string]any{"db": map[string]any{
		"type":      "cache",
		"instance":  s.subtype,
		"statement": strings.TrimSpace(op + " " + key),
	}})
	return err
}

// DoPublish 发布一条消息。fn 收到已写入链路头的消息头，消费端可据此继续链路。
func (s *Span) DoPublish(queue string, body []byte, fn func(headers map[string]string) error) error {
	defer s.End()

	headers := xtrace.MapCarrier{}
	_ = s.tracer.InjectHeaders(headers, s)

	err := fn(map[string]string(headers))
	if err != nil {
		_, _ = s.tracer.captureError(err, s, 1)
	}
	_ = s.SetContext(map[string]any{"message": map[string]any{
		"queue": map[string]any{"name": queue},
		"body":  string(body),
	}})
	return err
}
