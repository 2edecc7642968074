package xpool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xapm/pkg/observability/xlog"
	"github.com/omeyang/xapm/pkg/util/xpool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew_Validation(t *testing.T) {
	_, err := xpool.New[int](1, 1, nil)
	assert.ErrorIs(t, err, xpool.ErrNilHandler)

	_, err = xpool.New(0, 1, func(int) {})
	assert.ErrorIs(t, err, xpool.ErrInvalidWorkers)

	_, err = xpool.New(1, 0, func(int) {})
	assert.ErrorIs(t, err, xpool.ErrInvalidQueueSize)

	_, err = xpool.New(1, xpool.MaxQueueSize+1, func(int) {})
	assert.ErrorIs(t, err, xpool.ErrInvalidQueueSize)
}

func TestPool_ProcessesAll(t *testing.T) {
	var sum atomic.Int64
	p, err := xpool.New(4, 128, func(n int) { sum.Add(int64(n)) })
	require.NoError(t, err)
	assert.Equal(t, 4, p.Workers())
	assert.Equal(t, 128, p.QueueSize())

	for i := 1; i <= 100; i++ {
		require.NoError(t, p.Submit(i))
	}
	require.NoError(t, p.Close())
	assert.Equal(t, int64(5050), sum.Load())

	assert.ErrorIs(t, p.Submit(1), xpool.ErrPoolStopped)
	_, err = p.SubmitDropOldest(1)
	assert.ErrorIs(t, err, xpool.ErrPoolStopped)
}

// blockedPool 返回单 worker 且 worker 卡在第一个任务上的 pool。
func blockedPool(t *testing.T, queueSize int, opts ...xpool.Option) (*xpool.Pool[int], *[]int, chan struct{}) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []int
	)
	started := make(chan struct{})
	release := make(chan struct{})
	p, err := xpool.New(1, queueSize, func(n int) {
		if n == 0 {
			close(started)
			<-release
			return
		}
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	}, opts...)
	require.NoError(t, err)
	require.NoError(t, p.Submit(0))
	<-started
	return p, &seen, release
}

func TestPool_SubmitQueueFull(t *testing.T) {
	var drops atomic.Int64
	p, seen, release := blockedPool(t, 2, xpool.WithDropHook(func(n int) { drops.Add(int64(n)) }))

	require.NoError(t, p.Submit(1))
	require.NoError(t, p.Submit(2))
	assert.ErrorIs(t, p.Submit(3), xpool.ErrQueueFull)
	assert.Equal(t, int64(1), drops.Load())

	close(release)
	require.NoError(t, p.Close())
	assert.Equal(t, []int{1, 2}, *seen)
}

func TestPool_SubmitDropOldest(t *testing.T) {
	var drops atomic.Int64
	p, seen, release := blockedPool(t, 2, xpool.WithDropHook(func(n int) { drops.Add(int64(n)) }))

	for i := 1; i <= 5; i++ {
		_, err := p.SubmitDropOldest(i)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, int64(3), drops.Load())

	close(release)
	require.NoError(t, p.Close())
	assert.Equal(t, []int{4, 5}, *seen)
}

func TestPool_PanicRecovered(t *testing.T) {
	var ok atomic.Int64
	p, err := xpool.New(1, 4, func(n int) {
		if n == 1 {
			panic("boom")
		}
		ok.Add(1)
	}, xpool.WithName("test"), xpool.WithLogger(xlog.Discard()))
	require.NoError(t, err)

	require.NoError(t, p.Submit(1))
	require.NoError(t, p.Submit(2))
	require.NoError(t, p.Close())
	assert.Equal(t, int64(1), ok.Load())
}

func TestPool_ShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	p, err := xpool.New(1, 1, func(int) { <-release })
	require.NoError(t, err)
	require.NoError(t, p.Submit(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not exit")
	}
	//nolint:staticcheck // nil context is rejected explicitly
	assert.ErrorIs(t, p.Shutdown(nil), xpool.ErrNilContext)
}
