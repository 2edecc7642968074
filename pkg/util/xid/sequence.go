package xid

import (
	"errors"
	"fmt"

	"github.com/sony/sonyflake/v2"
)

// ErrOverTimeLimit Sonyflake 时间分量溢出，不可恢复。
var ErrOverTimeLimit = errors.New("xid: time component overflow")

// Sequence 单调递增的批次序号生成器，并发安全。
type Sequence struct {
	next func() (int64, error)
}

// NewSequence 创建批次序号生成器。
// machineID 为 nil 时使用 [DefaultMachineID]。
func NewSequence(machineID func() (uint16, error)) (*Sequence, error) {
	if machineID == nil {
		machineID = DefaultMachineID
	}
	sf, err := sonyflake.New(sonyflake.Settings{
		MachineID: func() (int, error) {
			id, err := machineID()
			return int(id), err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Sequence{next: sf.NextID}, nil
}

// Next 返回下一个序号。
func (s *Sequence) Next() (int64, error) {
	if s == nil || s.next == nil {
		return 0, ErrNilGenerator
	}
	id, err := s.next()
	if err != nil {
		if errors.Is(err, sonyflake.ErrOverTimeLimit) {
			return 0, fmt.Errorf("%w: %w", ErrOverTimeLimit, err)
		}
		return 0, err
	}
	return id, nil
}
