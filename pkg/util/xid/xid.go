package xid

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	// ErrInvalidLength byteLen 不是正数。
	ErrInvalidLength = errors.New("xid: byte length must be positive")

	// ErrExhausted GenerateUnique 在最大尝试次数内未能得到未占用的 ID。
	ErrExhausted = errors.New("xid: unique id attempts exhausted")

	// ErrInvalidConfig 配置参数无效。
	ErrInvalidConfig = errors.New("xid: invalid config")

	// ErrNilGenerator 生成器为 nil 或未通过 NewGenerator 创建。
	ErrNilGenerator = errors.New("xid: nil generator (use NewGenerator to create)")
)

const (
	// DefaultMaxAttempts GenerateUnique 的默认最大尝试次数。
	// 8 字节 ID 在单个请求的注册表内碰撞概率可忽略，
	// 耗尽通常意味着 exists 判定或随机源本身有问题。
	DefaultMaxAttempts = 64

	// TraceIDBytes W3C trace-id 的字节数。
	TraceIDBytes = 16
	// SpanIDBytes W3C parent-id / 事件 id 的字节数。
	SpanIDBytes = 8
)

// =============================================================================
// 配置
// =============================================================================

type options struct {
	reader      io.Reader
	maxAttempts int
}

// Option 配置选项函数
type Option func(*options)

// WithReader 设置随机源，默认为 crypto/rand.Reader。
// 仅用于测试注入确定性字节流。
func WithReader(r io.Reader) Option {
	return func(o *options) {
		o.reader = r
	}
}

// WithMaxAttempts 设置 GenerateUnique 的最大尝试次数，非正值被忽略。
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// =============================================================================
// Generator
// =============================================================================

// Generator 随机十六进制 ID 生成器，并发安全。
type Generator struct {
	mu          sync.Mutex // 保护非并发安全的自定义 reader
	reader      io.Reader
	maxAttempts int
}

// NewGenerator 创建生成器。nil Option 静默跳过。
func NewGenerator(opts ...Option) *Generator {
	o := &options{
		reader:      rand.Reader,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Generator{reader: o.reader, maxAttempts: o.maxAttempts}
}

// Generate 生成 byteLen 个随机字节并返回其小写十六进制编码（长度 2*byteLen）。
func (g *Generator) Generate(byteLen int) (string, error) {
	if g == nil || g.reader == nil {
		return "", ErrNilGenerator
	}
	if byteLen <= 0 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidLength, byteLen)
	}
	buf := make([]byte, byteLen)
	g.mu.Lock()
	_, err := io.ReadFull(g.reader, buf)
	g.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("xid: read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateUnique 重复生成直到 exists 返回 false。
// exists 为 nil 时等价于 Generate。
func (g *Generator) GenerateUnique(byteLen int, exists func(string) bool) (string, error) {
	if g == nil || g.reader == nil {
		return "", ErrNilGenerator
	}
	for range g.maxAttempts {
		id, err := g.Generate(byteLen)
		if err != nil {
			return "", err
		}
		if exists == nil || !exists(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: after %d attempts", ErrExhausted, g.maxAttempts)
}

// NonZero 生成 byteLen 字节、且不全为零的十六进制 ID。
// W3C 规定全零的 trace-id 与 parent-id 无效。
func (g *Generator) NonZero(byteLen int) (string, error) {
	return g.GenerateUnique(byteLen, isAllZero)
}

func isAllZero(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '0' {
			return false
		}
	}
	return true
}

// =============================================================================
// 包级函数
// =============================================================================

var defaultGen = NewGenerator()

// Generate 使用默认生成器，见 [Generator.Generate]。
func Generate(byteLen int) (string, error) {
	return defaultGen.Generate(byteLen)
}

// GenerateUnique 使用默认生成器，见 [Generator.GenerateUnique]。
func GenerateUnique(byteLen int, exists func(string) bool) (string, error) {
	return defaultGen.GenerateUnique(byteLen, exists)
}

// TraceID 生成 32 个十六进制字符的非零 trace-id。
func TraceID() (string, error) {
	return defaultGen.NonZero(TraceIDBytes)
}

// SpanID 生成 16 个十六进制字符的非零 span-id。
func SpanID() (string, error) {
	return defaultGen.NonZero(SpanIDBytes)
}

// EphemeralID 返回一个新的 UUIDv4 字符串。
func EphemeralID() string {
	return uuid.NewString()
}
