package xapm

import (
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/knadh/koanf/maps"
)

// MaxContextValueLen 上下文字符串值的最大字符数，超出部分截断并以 "…" 结尾。
const MaxContextValueLen = 1024

const ellipsis = "…"

// Event 所有事件的公共行为。
type Event interface {
	ID() string
	TraceID() string
	// ParentID 父事件 id；transaction 为上游 span id（可能为空）
	ParentID() string
	Type() EventType
	// End 结束事件，幂等
	End()
	Ended() bool
	// SetContext 深度合并上下文，结束后返回 ErrEventEnded
	SetContext(partial map[string]any) error
}

// event 事件基类：生命周期与上下文。
type event struct {
	tracer   *Tracer
	typ      EventType
	id       string
	traceID  string
	parentID string
	start    time.Time

	// marshal 由具体事件设置，结束时调用一次
	marshal func() ([]byte, error)

	mu       sync.Mutex
	ended    bool
	duration float64
	context  map[string]any
}

func (e *event) ID() string       { return e.id }
func (e *event) TraceID() string  { return e.traceID }
func (e *event) ParentID() string { return e.parentID }
func (e *event) Type() EventType  { return e.typ }

// Timestamp 开始时间（微秒）
func (e *event) Timestamp() int64 {
	return e.start.UnixMicro()
}

// Duration 耗时（毫秒），未结束时为 0
func (e *event) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *event) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *event) SetContext(partial map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return ErrEventEnded
	}
	if len(partial) == 0 {
		return nil
	}
	if e.context == nil {
		e.context = make(map[string]any)
	}
	maps.Merge(maps.Copy(partial), e.context)
	return nil
}

// Context 返回上下文副本（已截断）
func (e *event) Context() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contextLocked()
}

func (e *event) contextLocked() map[string]any {
	if len(e.context) == 0 {
		return nil
	}
	out := maps.Copy(e.context)
	truncateStrings(out)
	return out
}

func (e *event) End() {
	e.finish()
}

// finish 结束事件：计算耗时、更新注册表、序列化进缓冲区。只有第一次调用返回 true。
func (e *event) finish() bool {
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return false
	}
	e.ended = true
	e.duration = durationMillis(e.tracer.now().Sub(e.start))
	duration := e.duration
	e.mu.Unlock()

	e.tracer.finished(e, duration)
	return true
}

func durationMillis(d time.Duration) float64 {
	if d < 0 {
		d = 0
	}
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*1000) / 1000
}

// truncateStrings 截断 m 中所有超长的字符串叶子，嵌套的 map 与切片一并处理。
func truncateStrings(m map[string]any) {
	for k, v := range m {
		m[k] = truncateValue(v)
	}
}

// truncateValue 返回截断后的值；切片与 map[string]string 复制后再写，不改动调用方的数据。
func truncateValue(v any) any {
	switch val := v.(type) {
	case string:
		return truncate(val)
	case map[string]any:
		truncateStrings(val)
		return val
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = truncateValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = truncateValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = truncate(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for key, item := range val {
			out[key] = truncate(item)
		}
		return out
	default:
		return v
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxContextValueLen {
		return s
	}
	limit := MaxContextValueLen - utf8.RuneCountInString(ellipsis)
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + ellipsis
		}
		n++
	}
	return s
}
