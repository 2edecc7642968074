package xsampling

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidRate 采样率不在 [0, 1] 或为 NaN
var ErrInvalidRate = errors.New("xsampling: rate must be within [0, 1]")

// Sampler 采样策略
type Sampler interface {
	// ShouldSample traceID 可为空
	ShouldSample(ctx context.Context, traceID string) bool
}

type constSampler bool

func (s constSampler) ShouldSample(context.Context, string) bool { return bool(s) }

// Always 全采样
func Always() Sampler { return constSampler(true) }

// Never 不采样
func Never() Sampler { return constSampler(false) }

// RatioSampler 按 trace id 一致性比率采样
type RatioSampler struct {
	bits atomic.Uint64 // math.Float64bits(rate)
}

// NewRatioSampler 创建比率采样器
func NewRatioSampler(rate float64) (*RatioSampler, error) {
	s := &RatioSampler{}
	if err := s.SetRate(rate); err != nil {
		return nil, err
	}
	return s, nil
}

// SetRate 原子更新采样率
func (s *RatioSampler) SetRate(rate float64) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}
	s.bits.Store(math.Float64bits(rate))
	return nil
}

// Rate 当前采样率
func (s *RatioSampler) Rate() float64 {
	return math.Float64frombits(s.bits.Load())
}

func (s *RatioSampler) ShouldSample(_ context.Context, traceID string) bool {
	rate := s.Rate()
	switch {
	case rate <= 0:
		return false
	case rate >= 1:
		return true
	case traceID == "":
		return randomFloat64() < rate
	default:
		return float64(xxhash.Sum64String(traceID))/float64(math.MaxUint64) < rate
	}
}

// ValidateRate 校验采样率
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	return nil
}

// randomFloat64 返回 [0, 1) 的随机数
func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("xsampling: crypto/rand.Read failed: " + err.Error())
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) / (1 << 53)
}

var _ Sampler = (*RatioSampler)(nil)
