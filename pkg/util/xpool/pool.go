package xpool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/omeyang/xapm/pkg/observability/xlog"
)

const (
	// MaxWorkers worker 数量上限
	MaxWorkers = 1 << 16
	// MaxQueueSize 队列大小上限
	MaxQueueSize = 1 << 24
)

var _ io.Closer = (*Pool[int])(nil)

// Pool 泛型 worker pool，创建后立即启动。
type Pool[T any] struct {
	handler func(T)
	opts    options
	workers int

	// mu 保护 queue 的发送与关闭，drop-oldest 的"取一个再放一个"需要原子性。
	mu     sync.Mutex
	closed bool
	queue  chan T

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// New 创建并启动 pool。
func New[T any](workers, queueSize int, handler func(T), opts ...Option) (*Pool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if workers < 1 || workers > MaxWorkers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if queueSize < 1 || queueSize > MaxQueueSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueSize, queueSize)
	}

	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	p := &Pool[T]{
		handler: handler,
		opts:    o,
		workers: workers,
		queue:   make(chan T, queueSize),
		done:    make(chan struct{}),
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	return p, nil
}

// Submit 提交任务，队列满时返回 ErrQueueFull。
func (p *Pool[T]) Submit(task T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		p.dropped(1)
		return ErrQueueFull
	}
}

// SubmitDropOldest 提交任务，队列满时淘汰最早的任务。
// 返回被淘汰的任务数（0 或 1）。
func (p *Pool[T]) SubmitDropOldest(task T) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrPoolStopped
	}
	evicted := 0
	for {
		select {
		case p.queue <- task:
			if evicted > 0 {
				p.dropped(evicted)
			}
			return evicted, nil
		default:
		}
		// 队列满：worker 可能同时取走任务，取不到时直接重试发送
		select {
		case <-p.queue:
			evicted++
		default:
		}
	}
}

// Len 当前排队任务数
func (p *Pool[T]) Len() int {
	return len(p.queue)
}

// Workers worker 数量
func (p *Pool[T]) Workers() int {
	return p.workers
}

// QueueSize 队列容量
func (p *Pool[T]) QueueSize() int {
	return cap(p.queue)
}

// Close 拒绝新任务并等待队列耗尽。
func (p *Pool[T]) Close() error {
	return p.Shutdown(context.Background())
}

// Shutdown 拒绝新任务并等待队列耗尽，ctx 到期时提前返回 ctx.Err()。
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 所有 worker 退出后关闭
func (p *Pool[T]) Done() <-chan struct{} {
	return p.done
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

func (p *Pool[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil {
			p.logger().Error(context.Background(), "xpool: handler panic recovered",
				xlog.Component(p.opts.name),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("task_type", fmt.Sprintf("%T", task)),
				slog.String(xlog.KeyStack, string(debug.Stack())))
		}
	}()
	p.handler(task)
}

func (p *Pool[T]) dropped(n int) {
	if p.opts.onDrop != nil {
		p.opts.onDrop(n)
	}
}

func (p *Pool[T]) logger() xlog.Logger {
	if p.opts.logger != nil {
		return p.opts.logger
	}
	return xlog.Default()
}
