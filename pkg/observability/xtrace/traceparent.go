package xtrace

import (
	"strconv"
	"strings"
)

// =============================================================================
// 常量
// =============================================================================

const (
	// Version 本实现支持的 traceparent 版本。
	Version = "00"

	// FlagsNone 未采样。
	FlagsNone = "00"
	// FlagsSampled 已采样（record-request 位置位）。
	FlagsSampled = "01"

	// FlagRecordRequest trace-flags 中 "采样/记录" 位。
	FlagRecordRequest = 0x01

	traceIDLen     = 32
	parentIDLen    = 16
	flagsLen       = 2
	traceparentLen = 55 // 00-{32}-{16}-{2}
)

const (
	zeroTraceID  = "00000000000000000000000000000000"
	zeroParentID = "0000000000000000"
)

// =============================================================================
// TraceContext
// =============================================================================

// TraceContext 一次工作单元的链路标识。
//
// Valid 为 true 表示标识来自合法的上游 traceparent；
// 为 false 时 TraceID 是本地合成的，ParentID 为空。
type TraceContext struct {
	Version  string
	TraceID  string
	ParentID string
	Flags    string
	Valid    bool

	// State 入站 tracestate，可能为 nil。
	State *Tracestate
}

// IsRecordRequest 上游是否要求记录本次请求（trace-flags bit0）。
func (tc TraceContext) IsRecordRequest() bool {
	if !isValidFlags(tc.Flags) {
		return false
	}
	v, err := strconv.ParseUint(tc.Flags, 16, 8)
	if err != nil {
		return false
	}
	return v&FlagRecordRequest != 0
}

// Tracestate 返回非 nil 的 tracestate。
func (tc TraceContext) Tracestate() *Tracestate {
	if tc.State == nil {
		return NewTracestate()
	}
	return tc.State
}

// =============================================================================
// 解析
// =============================================================================

// ParseTraceparent 解析并校验 traceparent。
// 成功时返回的 TraceContext.Valid 为 true。
func ParseTraceparent(s string) (TraceContext, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return TraceContext{}, ErrMalformedTraceparent
	}
	version, traceID, parentID, flags := parts[0], parts[1], parts[2], parts[3]

	if version != Version {
		return TraceContext{}, ErrInvalidVersion
	}
	if !isValidTraceID(traceID) {
		return TraceContext{}, ErrInvalidTraceID
	}
	if !isValidParentID(parentID) {
		return TraceContext{}, ErrInvalidParentID
	}
	if !isValidFlags(flags) {
		return TraceContext{}, ErrInvalidFlags
	}

	return TraceContext{
		Version:  version,
		TraceID:  traceID,
		ParentID: parentID,
		Flags:    flags,
		Valid:    true,
	}, nil
}

// isLowerHex 只接受小写十六进制，W3C 要求 id 使用小写。
func isLowerHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func isValidTraceID(id string) bool {
	return len(id) == traceIDLen && isLowerHex(id) && id != zeroTraceID
}

func isValidParentID(id string) bool {
	return len(id) == parentIDLen && isLowerHex(id) && id != zeroParentID
}

func isValidFlags(flags string) bool {
	return len(flags) == flagsLen && isLowerHex(flags)
}

// IsValidTraceID 校验 trace-id（32 位小写十六进制，非全零）。
func IsValidTraceID(id string) bool { return isValidTraceID(id) }

// IsValidSpanID 校验 span-id / parent-id（16 位小写十六进制，非全零）。
func IsValidSpanID(id string) bool { return isValidParentID(id) }

// =============================================================================
// 渲染
// =============================================================================

// FormatTraceparent 渲染 {version}-{trace-id}-{parent-id}-{flags}。
// Version 为空按 "00"，Flags 非法按 "00"。
// TraceID 或 ParentID 非法时返回空字符串。
func FormatTraceparent(tc TraceContext) string {
	return formatTraceparent(tc.Version, tc.TraceID, tc.ParentID, tc.Flags)
}

// NextTraceparent 渲染发往下一跳的 traceparent：parent-id 替换为当前 span-id。
func NextTraceparent(tc TraceContext, spanID string) string {
	return formatTraceparent(tc.Version, tc.TraceID, spanID, tc.Flags)
}

// TraceResponse 渲染 traceresponse 响应头。
//
// 存在合法上游链路时返回完整形式 00-{trace-id}-{span-id}-{flags}；
// 否则返回省略 id 字段的降级形式 00---{flags}。
func TraceResponse(tc TraceContext, spanID string) string {
	flags := tc.Flags
	if !isValidFlags(flags) {
		flags = FlagsNone
	}
	if tc.Valid {
		if s := formatTraceparent(Version, tc.TraceID, spanID, flags); s != "" {
			return s
		}
	}
	return Version + "---" + flags
}

// formatTraceparent 使用固定大小的缓冲区拼接，避免多次分配。
func formatTraceparent(version, traceID, spanID, flags string) string {
	if !isValidTraceID(traceID) || !isValidParentID(spanID) {
		return ""
	}
	if version == "" || len(version) != 2 {
		version = Version
	}
	if !isValidFlags(flags) {
		flags = FlagsNone
	}

	var buf [traceparentLen]byte
	copy(buf[0:2], version)
	buf[2] = '-'
	copy(buf[3:35], traceID)
	buf[35] = '-'
	copy(buf[36:52], spanID)
	buf[52] = '-'
	copy(buf[53:55], flags)
	return string(buf[:])
}
