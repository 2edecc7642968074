package xintake

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xapm/pkg/observability/xlog"
)

// senderFunc 函数适配 Sender
type senderFunc func(ctx context.Context, req *Request) error

func (f senderFunc) Deliver(ctx context.Context, req *Request) error { return f(ctx, req) }

// captureSender 记录所有请求
type captureSender struct {
	mu   sync.Mutex
	reqs []*Request
	err  error
}

func (s *captureSender) Deliver(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.err
}

func (s *captureSender) lines(i int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Split(strings.TrimSuffix(string(s.reqs[i].Body), "\n"), "\n")
}

func TestNewPipeline_NilSender(t *testing.T) {
	_, err := NewPipeline(nil)
	assert.ErrorIs(t, err, ErrNilSender)
}

func TestPipeline_BuildBody(t *testing.T) {
	p, err := NewPipeline(&captureSender{})
	require.NoError(t, err)

	p.AddEvent([]byte(`{"span":{"id":"a"}}`), false)
	p.AddEvent([]byte(`{"transaction":{"id":"b"}}`), false)
	p.AddEvent([]byte(`{"metadata":{}}`), true)
	p.AddEvent(nil, false)

	assert.Equal(t, 3, p.Len())
	assert.Equal(t,
		"{\"metadata\":{}}\n{\"span\":{\"id\":\"a\"}}\n{\"transaction\":{\"id\":\"b\"}}\n",
		string(p.BuildBody()))

	p.Reset()
	assert.Equal(t, 0, p.Len())
	assert.Empty(t, p.BuildBody())
}

func TestPipeline_Push_MetadataFirstAndOnce(t *testing.T) {
	s := &captureSender{}
	calls := 0
	p, err := NewPipeline(s, WithMetadata(func() ([]byte, error) {
		calls++
		return []byte(`{"metadata":{"service":{"name":"checkout"}}}`), nil
	}))
	require.NoError(t, err)

	p.AddEvent([]byte(`{"transaction":{"id":"1"}}`), false)
	require.NoError(t, p.Push(context.Background()))
	p.AddEvent([]byte(`{"transaction":{"id":"2"}}`), false)
	require.NoError(t, p.Push(context.Background()))

	assert.Equal(t, 1, calls)
	require.Len(t, s.reqs, 2)

	first := s.lines(0)
	require.Len(t, first, 2)
	assert.Equal(t, "metadata", DocType([]byte(first[0])))
	assert.Equal(t, 2, s.reqs[0].Events)

	second := s.lines(1)
	assert.Equal(t, []string{`{"transaction":{"id":"2"}}`}, second)
}

func TestPipeline_Push_ClearsBufferOnError(t *testing.T) {
	s := &captureSender{err: newStatusError(http.StatusInternalServerError, nil)}
	p, err := NewPipeline(s)
	require.NoError(t, err)

	p.AddEvent([]byte(`{"error":{}}`), false)
	err = p.Push(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, 0, p.Len())
}

func TestPipeline_Push_ClearsBufferOnAbandon(t *testing.T) {
	p, err := NewPipeline(senderFunc(func(context.Context, *Request) error {
		return ErrAbandoned
	}))
	require.NoError(t, err)

	p.AddEvent([]byte(`{"span":{}}`), false)
	assert.ErrorIs(t, p.Push(context.Background()), ErrAbandoned)
	assert.Equal(t, 0, p.Len())
}

func TestPipeline_Push_EmptyBufferSendsNothing(t *testing.T) {
	s := &captureSender{}
	p, err := NewPipeline(s, WithMetadata(func() ([]byte, error) {
		return []byte(`{"metadata":{}}`), nil
	}))
	require.NoError(t, err)

	require.NoError(t, p.Push(context.Background()))
	assert.Empty(t, s.reqs)
}

func TestPipeline_Push_MetadataFailureKeepsEvents(t *testing.T) {
	s := &captureSender{}
	p, err := NewPipeline(s,
		WithPipelineLogger(xlog.Discard()),
		WithMetadata(func() ([]byte, error) { return nil, errors.New("boom") }))
	require.NoError(t, err)

	p.AddEvent([]byte(`{"transaction":{}}`), false)
	require.NoError(t, p.Push(context.Background()))
	require.Len(t, s.reqs, 1)
	assert.Equal(t, []string{`{"transaction":{}}`}, s.lines(0))
}

func TestPipeline_CloseRejectsLateEvents(t *testing.T) {
	sender := &captureSender{}
	p, err := NewPipeline(sender)
	require.NoError(t, err)

	assert.True(t, p.AddEvent([]byte(`{"span":{"id":"a"}}`), false))
	require.NoError(t, p.Close(context.Background()))
	assert.True(t, p.Closed())

	assert.False(t, p.AddEvent([]byte(`{"span":{"id":"b"}}`), false))
	assert.Zero(t, p.Len())

	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Push(context.Background()))
	assert.Len(t, sender.reqs, 1)
	assert.Equal(t, []string{`{"span":{"id":"a"}}`}, sender.lines(0))
}

func TestPipeline_CloseEmptyStillCloses(t *testing.T) {
	sender := &captureSender{}
	p, err := NewPipeline(sender)
	require.NoError(t, err)

	require.NoError(t, p.Close(context.Background()))
	assert.False(t, p.AddEvent([]byte(`{"span":{"id":"a"}}`), false))
	assert.Empty(t, sender.reqs)
}

func TestPipeline_RecordsBufferedEvents(t *testing.T) {
	rec := &recordingRecorder{}
	p, err := NewPipeline(&captureSender{},
		WithPipelineRecorder(rec),
		WithMetadata(func() ([]byte, error) { return []byte(`{"metadata":{}}`), nil }))
	require.NoError(t, err)

	p.AddEvent([]byte(`{"span":{}}`), false)
	p.AddEvent([]byte(`{"error":{}}`), false)
	require.NoError(t, p.Push(context.Background()))

	buffered, _, _ := rec.snapshot()
	assert.Equal(t, []string{"span", "error", "metadata"}, buffered)
}

func TestDocType(t *testing.T) {
	tests := []struct {
		doc  string
		want string
	}{
		{`{"metadata":{}}`, "metadata"},
		{` { "transaction" : {}}`, "transaction"},
		{`{"span":{}}`, "span"},
		{`[]`, "unknown"},
		{`{}`, "unknown"},
		{`{""}`, "unknown"},
		{``, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DocType([]byte(tt.doc)), tt.doc)
	}
}
