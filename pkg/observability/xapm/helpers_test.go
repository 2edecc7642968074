package xapm

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xapm/pkg/observability/xintake"
	"github.com/omeyang/xapm/pkg/observability/xlog"
)

const testEndpoint = "http://collector.test/intake/v2/events"

// captureTransport 记录所有批次的内存 Transport
type captureTransport struct {
	mu      sync.Mutex
	batches [][]byte
}

func (c *captureTransport) Send(_ context.Context, req *xintake.Request) (*xintake.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, append([]byte(nil), req.Body...))
	return &xintake.Response{StatusCode: 202}, nil
}

func (c *captureTransport) Ping(context.Context) (*xintake.Response, error) {
	return &xintake.Response{StatusCode: 200}, nil
}

func (c *captureTransport) Endpoint() string { return testEndpoint }

func (c *captureTransport) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

// doc 一行 NDJSON 解析后的结果：顶层键与文档内容
type doc struct {
	kind string
	body map[string]any
}

// docs 解析第 i 个批次
func (c *captureTransport) docs(t *testing.T, i int) []doc {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Greater(t, len(c.batches), i, "batch %d not sent", i)

	var out []doc
	for _, line := range strings.Split(strings.TrimSuffix(string(c.batches[i]), "\n"), "\n") {
		var m map[string]map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		require.Len(t, m, 1)
		for k, v := range m {
			out = append(out, doc{kind: k, body: v})
		}
	}
	return out
}

// find 返回指定类型、指定 id 的文档
func find(t *testing.T, docs []doc, kind, id string) map[string]any {
	t.Helper()
	for _, d := range docs {
		if d.kind == kind && d.body["id"] == id {
			return d.body
		}
	}
	t.Fatalf("%s %s not found", kind, id)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ServiceName = "checkout"
	cfg.ServerURL = "http://collector.test"
	return cfg
}

// fixedClock 每次调用前进 step
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

func newTestAgent(t *testing.T, cfg Config, opts ...Option) (*Agent, *captureTransport) {
	t.Helper()
	tr := &captureTransport{}
	all := append([]Option{WithTransport(tr), WithLogger(xlog.Discard())}, opts...)
	a, err := NewAgent(cfg, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, tr
}

func newTestTracer(t *testing.T, a *Agent) *Tracer {
	t.Helper()
	tracer, err := a.NewTracer(context.Background(), nil)
	require.NoError(t, err)
	return tracer
}
