package xintake

import (
	"context"
	"net/http"
	"sync"
)

// MemoryTransport 把批次保存在内存中而不发送，用于 dry-run 与测试。
type MemoryTransport struct {
	mu      sync.Mutex
	batches [][]byte
}

// NewMemoryTransport 创建 MemoryTransport
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// Send 保存请求体副本，总是返回 202。
func (m *MemoryTransport) Send(_ context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	m.mu.Lock()
	m.batches = append(m.batches, append([]byte(nil), req.Body...))
	m.mu.Unlock()
	return &Response{StatusCode: http.StatusAccepted}, nil
}

// Ping 总是成功
func (m *MemoryTransport) Ping(context.Context) (*Response, error) {
	return &Response{StatusCode: http.StatusOK}, nil
}

// Endpoint 固定为 "memory://"
func (m *MemoryTransport) Endpoint() string {
	return "memory://"
}

// Batches 返回已保存批次的副本
func (m *MemoryTransport) Batches() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.batches))
	for i, b := range m.batches {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

var _ Transport = (*MemoryTransport)(nil)
