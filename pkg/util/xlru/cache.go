package xlru

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxSize 表最大条目数上限。
const maxSize = 1 << 24

// Option 定义可选配置函数类型。
type Option[K comparable, V any] func(*options[K, V])

type options[K comparable, V any] struct {
	onEvicted func(key K, value V)
}

// WithOnEvicted 设置条目因容量被淘汰或被 Purge 清除时的回调。
//
// 回调在 Table 的互斥锁内同步执行，不得调用 Table 自身的写方法。
func WithOnEvicted[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(o *options[K, V]) {
		o.onEvicted = fn
	}
}

// Table 是有界 LRU 表，所有方法并发安全。
// 必须通过 [New] 创建。
type Table[K comparable, V any] struct {
	lru *lru.Cache[K, V]
	mu  sync.Mutex
	// taking 为 true 时 Take 引起的删除不触发回调
	taking    bool
	onEvicted func(key K, value V)
}

// New 创建容量为 size 的表。
// size <= 0 返回 ErrInvalidSize，超过上限返回 ErrSizeExceedsMax。
func New[K comparable, V any](size int, opts ...Option[K, V]) (*Table[K, V], error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if size > maxSize {
		return nil, ErrSizeExceedsMax
	}

	o := &options[K, V]{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	t := &Table[K, V]{onEvicted: o.onEvicted}
	c, err := lru.NewWithEvict(size, t.evicted)
	if err != nil {
		return nil, err
	}
	t.lru = c
	return t, nil
}

func (t *Table[K, V]) evicted(key K, value V) {
	if t.taking || t.onEvicted == nil {
		return
	}
	t.onEvicted(key, value)
}

// Add 写入条目。返回值表示是否因容量淘汰了其他条目。
func (t *Table[K, V]) Add(key K, value V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Add(key, value)
}

// Get 读取条目并刷新其访问顺序。
func (t *Table[K, V]) Get(key K) (V, bool) {
	return t.lru.Get(key)
}

// Take 取出并删除条目，不触发淘汰回调。
// 同一键并发 Take 时只有一个调用得到条目。
func (t *Table[K, V]) Take(key K) (value V, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	value, ok = t.lru.Peek(key)
	if !ok {
		return value, false
	}
	t.taking = true
	t.lru.Remove(key)
	t.taking = false
	return value, true
}

// Len 返回当前条目数。
func (t *Table[K, V]) Len() int {
	return t.lru.Len()
}

// Purge 清空所有条目，对每个条目调用淘汰回调。
func (t *Table[K, V]) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Purge()
}
