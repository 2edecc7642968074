package xid

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
)

// 测试注入点
var osHostname = os.Hostname

// =============================================================================
// 机器 ID（仅用于 Sequence）
// =============================================================================

const (
	// EnvMachineID 显式指定机器 ID 的环境变量（0-65535）
	EnvMachineID = "XAPM_MACHINE_ID"

	// EnvPodName K8s Pod 名称环境变量（通过 Downward API 注入）
	EnvPodName = "POD_NAME"
)

// DefaultMachineID 获取 Sequence 使用的机器 ID，按以下优先级尝试：
//
//  1. XAPM_MACHINE_ID 环境变量（直接指定数字 0-65535）
//  2. POD_NAME 环境变量的哈希值
//  3. os.Hostname() 的哈希值
//
// 批次序号只用于日志关联，哈希碰撞不影响事件 ID 的唯一性。
func DefaultMachineID() (uint16, error) {
	if s := os.Getenv(EnvMachineID); s != "" {
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, EnvMachineID, s, err)
		}
		return uint16(id), nil
	}

	if pod := os.Getenv(EnvPodName); pod != "" {
		return hashToMachineID(pod), nil
	}

	hostname, err := osHostname()
	if err != nil {
		return 0, fmt.Errorf("%w: hostname: %w", ErrInvalidConfig, err)
	}
	if hostname == "" {
		return 0, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.New("empty hostname"))
	}
	return hashToMachineID(hostname), nil
}

// hashToMachineID 将字符串哈希为 16 位机器 ID（FNV-1a，XOR 折叠）。
func hashToMachineID(s string) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s)) // hash.Hash.Write never returns error
	b := h.Sum(nil)
	hi := uint16(b[0])<<8 | uint16(b[1])
	lo := uint16(b[2])<<8 | uint16(b[3])
	return hi ^ lo
}
