package xintake

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/observability/xmetrics"
	"github.com/omeyang/xapm/pkg/util/xid"
)

const testEndpoint = "http://apm.test/intake/v2/events"

func newMockTransport(t *testing.T) *MockTransport {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := NewMockTransport(ctrl)
	m.EXPECT().Endpoint().Return(testEndpoint).AnyTimes()
	return m
}

func TestNewClient_NilTransport(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorIs(t, err, ErrNilTransport)
}

func TestClient_Deliver_Sent(t *testing.T) {
	tr := newMockTransport(t)
	rec := &recordingRecorder{}
	req := &Request{Body: []byte("{}\n{}\n"), Events: 2}

	tr.EXPECT().Send(gomock.Any(), req).Return(&Response{StatusCode: http.StatusAccepted}, nil)

	c, err := NewClient(tr, WithRecorder(rec), WithLogger(xlog.Discard()), WithDebug(true))
	require.NoError(t, err)
	require.NoError(t, c.Deliver(context.Background(), req))

	_, results, _ := rec.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, xmetrics.OutcomeSent, results[0].Outcome)
	assert.Equal(t, 2, results[0].Events)
	assert.Equal(t, len(req.Body), results[0].Bytes)
	assert.Equal(t, http.StatusAccepted, results[0].StatusCode)
}

func TestClient_Deliver_Failed(t *testing.T) {
	tr := newMockTransport(t)
	rec := &recordingRecorder{}
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(nil, newStatusError(http.StatusServiceUnavailable, []byte("queue full")))

	c, err := NewClient(tr, WithRecorder(rec), WithLogger(xlog.Discard()))
	require.NoError(t, err)

	err = c.Deliver(context.Background(), &Request{Body: []byte("{}\n"), Events: 1})
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	_, results, _ := rec.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, xmetrics.OutcomeFailed, results[0].Outcome)
	assert.Equal(t, http.StatusServiceUnavailable, results[0].StatusCode)
}

func TestClient_Deliver_AbandonedAfterPendingWait(t *testing.T) {
	tr := newMockTransport(t)
	rec := &recordingRecorder{}
	cancelled := make(chan struct{})
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *Request) (*Response, error) {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		})

	c, err := NewClient(tr,
		WithRecorder(rec),
		WithLogger(xlog.Discard()),
		WithMaxPendingWait(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	err = c.Deliver(context.Background(), &Request{Body: []byte("{}\n"), Events: 1})
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight request was not cancelled")
	}

	_, results, _ := rec.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, xmetrics.OutcomeAbandoned, results[0].Outcome)
}

func TestClient_Deliver_CallerContextDone(t *testing.T) {
	tr := newMockTransport(t)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *Request) (*Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	c, err := NewClient(tr, WithLogger(xlog.Discard()), WithMaxPendingWait(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = c.Deliver(ctx, &Request{Body: []byte("{}\n")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Deliver_AssignsBatchID(t *testing.T) {
	tr := newMockTransport(t)
	seq, err := xid.NewSequence(func() (uint16, error) { return 7, nil })
	require.NoError(t, err)

	var seen []int64
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, req *Request) (*Response, error) {
			seen = append(seen, req.BatchID)
			return &Response{StatusCode: http.StatusAccepted}, nil
		})

	c, err := NewClient(tr, WithSequence(seq), WithLogger(xlog.Discard()))
	require.NoError(t, err)
	require.NoError(t, c.Deliver(context.Background(), &Request{Body: []byte("{}\n")}))
	require.NoError(t, c.Deliver(context.Background(), &Request{Body: []byte("{}\n")}))

	require.Len(t, seen, 2)
	assert.NotZero(t, seen[0])
	assert.Greater(t, seen[1], seen[0])
}

func TestClient_Deliver_NilRequest(t *testing.T) {
	c, err := NewClient(newMockTransport(t))
	require.NoError(t, err)
	assert.ErrorIs(t, c.Deliver(context.Background(), nil), ErrNilRequest)
}
