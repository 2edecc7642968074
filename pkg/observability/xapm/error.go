package xapm

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
)

// maxStackFrames 捕获的最大栈帧数
const maxStackFrames = 64

// Coder 携带数值错误码的错误，码值写入 exception.code。
type Coder interface {
	Code() int
}

// StackFrame 归一化的栈帧
type StackFrame struct {
	AbsPath  string `json:"abs_path"`
	Filename string `json:"filename"`
	Function string `json:"function"`
	Lineno   int    `json:"lineno"`
	Module   string `json:"module,omitempty"`
}

type exceptionDoc struct {
	Message    string       `json:"message"`
	Type       string       `json:"type"`
	Code       int          `json:"code,omitempty"`
	Module     string       `json:"module,omitempty"`
	Stacktrace []StackFrame `json:"stacktrace,omitempty"`
}

// ErrorEvent 捕获的错误，父事件是产生错误的事务或 span。
type ErrorEvent struct {
	event
	transactionID string
	sampled       bool
	exception     exceptionDoc
	culprit       string
}

// TransactionID 所属根事务 id
func (e *ErrorEvent) TransactionID() string {
	return e.transactionID
}

// Message 错误信息
func (e *ErrorEvent) Message() string {
	return e.exception.Message
}

// ExceptionType 错误类型链，最内层在前，以 "-" 连接
func (e *ErrorEvent) ExceptionType() string {
	return e.exception.Type
}

// Culprit 错误发生位置
func (e *ErrorEvent) Culprit() string {
	return e.culprit
}

// Stacktrace 捕获时的调用栈
func (e *ErrorEvent) Stacktrace() []StackFrame {
	return slices.Clone(e.exception.Stacktrace)
}

type errorTxDoc struct {
	Sampled bool   `json:"sampled"`
	Type    string `json:"type"`
}

type errorDoc struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transaction_id"`
	TraceID       string         `json:"trace_id"`
	ParentID      string         `json:"parent_id"`
	Timestamp     int64          `json:"timestamp"`
	Transaction   errorTxDoc     `json:"transaction"`
	Context       map[string]any `json:"context,omitempty"`
	Culprit       string         `json:"culprit,omitempty"`
	Exception     exceptionDoc   `json:"exception"`
}

// MarshalJSON intake error 文档：{"error":{...}}
func (e *ErrorEvent) MarshalJSON() ([]byte, error) {
	e.mu.Lock()
	doc := errorDoc{
		ID:            e.id,
		TransactionID: e.transactionID,
		TraceID:       e.traceID,
		ParentID:      e.parentID,
		Timestamp:     e.Timestamp(),
		Transaction:   errorTxDoc{Sampled: e.sampled, Type: TypeRequest},
		Context:       e.contextLocked(),
		Culprit:       e.culprit,
		Exception:     e.exception,
	}
	e.mu.Unlock()

	return json.Marshal(struct {
		Error errorDoc `json:"error"`
	}{doc})
}

var _ Event = (*ErrorEvent)(nil)

// =============================================================================
// 异常信息
// =============================================================================

func newException(err error, frames []StackFrame) exceptionDoc {
	ex := exceptionDoc{
		Message:    err.Error(),
		Type:       exceptionType(err),
		Stacktrace: frames,
	}
	var c Coder
	if errors.As(err, &c) {
		ex.Code = c.Code()
	}
	if t := reflect.TypeOf(err); t != nil {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		ex.Module = t.PkgPath()
	}
	return ex
}

// exceptionType 沿 errors.Unwrap 链收集类型名，最内层在前。
func exceptionType(err error) string {
	var names []string
	for e := err; e != nil; e = unwrapFirst(e) {
		names = append(names, fmt.Sprintf("%T", e))
	}
	slices.Reverse(names)
	return strings.Join(names, "-")
}

// unwrapFirst 解开一层包装；多重包装（errors.Join、多个 %w）取第一个分支。
func unwrapFirst(err error) error {
	if next := errors.Unwrap(err); next != nil {
		return next
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

// culprit 第一个栈帧的位置
func culprit(frames []StackFrame) string {
	if len(frames) == 0 {
		return ""
	}
	return fmt.Sprintf("File: %s, Line: %d", frames[0].AbsPath, frames[0].Lineno)
}

// captureStack 捕获调用栈，skip 为需要跳过的调用层数（0 表示 captureStack 的调用方）。
func captureStack(skip int) []StackFrame {
	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]StackFrame, 0, n)
	for {
		f, more := frames.Next()
		if f.Function != "" || f.File != "" {
			out = append(out, newStackFrame(f))
		}
		if !more {
			break
		}
	}
	return out
}

func newStackFrame(f runtime.Frame) StackFrame {
	module, function := splitFunction(f.Function)
	filename := f.File
	if i := strings.LastIndexByte(filename, '/'); i >= 0 {
		filename = filename[i+1:]
	}
	return StackFrame{
		AbsPath:  f.File,
		Filename: filename,
		Function: function,
		Lineno:   f.Line,
		Module:   module,
	}
}

// splitFunction "github.com/a/b.(*T).M" → ("github.com/a/b", "(*T).M")
func splitFunction(fn string) (module, function string) {
	slash := strings.LastIndexByte(fn, '/')
	dot := strings.IndexByte(fn[slash+1:], '.')
	if dot < 0 {
		return "", fn
	}
	dot += slash + 1
	return fn[:dot], fn[dot+1:]
}
