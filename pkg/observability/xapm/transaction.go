package xapm

import (
	"strconv"

	json "github.com/goccy/go-json"
)

const (
	// TypeRequest HTTP/gRPC 请求事务类型
	TypeRequest = "request"

	// DefaultResult 事务默认结果
	DefaultResult = "200"
)

// Transaction 工作单元的根事件。
type Transaction struct {
	event
	name    string
	kind    string
	result  string
	sampled bool
	rate    float64
}

// Name 事务名称
func (t *Transaction) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// SetName 修改事务名称（如路由匹配后），结束后返回 ErrEventEnded。
func (t *Transaction) SetName(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return ErrEventEnded
	}
	t.name = name
	return nil
}

// Kind 事务类型
func (t *Transaction) Kind() string {
	return t.kind
}

// Result 事务结果
func (t *Transaction) Result() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// SetResult 设置事务结果（如 "HTTP 2xx"），结束后返回 ErrEventEnded。
func (t *Transaction) SetResult(result string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return ErrEventEnded
	}
	t.result = result
	return nil
}

// SetStatusCode 以 HTTP 状态码设置结果
func (t *Transaction) SetStatusCode(code int) error {
	return t.SetResult(strconv.Itoa(code))
}

// Sampled 是否被采样
func (t *Transaction) Sampled() bool {
	return t.sampled
}

// StartedSpans 已开始的后代 span 数
func (t *Transaction) StartedSpans() int {
	return t.tracer.registry.StartedSpans(t.id)
}

type spanCount struct {
	Started int `json:"started"`
	Dropped int `json:"dropped"`
}

type transactionDoc struct {
	ID         string         `json:"id"`
	TraceID    string         `json:"trace_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Timestamp  int64          `json:"timestamp"`
	Duration   float64        `json:"duration"`
	Result     string         `json:"result"`
	Sampled    bool           `json:"sampled"`
	SampleRate float64        `json:"sample_rate"`
	SpanCount  spanCount      `json:"span_count"`
	Context    map[string]any `json:"context,omitempty"`
}

// MarshalJSON intake transaction 文档：{"transaction":{...}}
func (t *Transaction) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	doc := transactionDoc{
		ID:         t.id,
		TraceID:    t.traceID,
		ParentID:   t.parentID,
		Name:       t.name,
		Type:       t.kind,
		Timestamp:  t.Timestamp(),
		Duration:   t.duration,
		Result:     t.result,
		Sampled:    t.sampled,
		SampleRate: t.rate,
	}
	// 未采样的事务不携带上下文
	if t.sampled {
		doc.Context = t.contextLocked()
	}
	t.mu.Unlock()

	doc.SpanCount = spanCount{
		Started: t.StartedSpans(),
		Dropped: t.tracer.droppedSpans(),
	}
	return json.Marshal(struct {
		Transaction transactionDoc `json:"transaction"`
	}{doc})
}

var _ Event = (*Transaction)(nil)
