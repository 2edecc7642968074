package xlru

import "errors"

var (
	// ErrInvalidSize 表示表大小配置无效。
	ErrInvalidSize = errors.New("xlru: size must be greater than 0")

	// ErrSizeExceedsMax 表示表大小超过上限 (16,777,216)。
	ErrSizeExceedsMax = errors.New("xlru: size must not exceed 16777216")
)
