package xtrace

import (
	"strings"
)

// =============================================================================
// 常量
// =============================================================================

const (
	// MaxTracestateMembers tracestate 最多成员数。
	MaxTracestateMembers = 32

	// MaxTracestateKeyValueLen key 与 value 各自的最大长度。
	MaxTracestateKeyValueLen = 256

	// MaxTracestateHeaderLen 组合 tracestate 头的最大字节数。
	MaxTracestateHeaderLen = 512
)

// privacyKeys key 中不得出现的子串，tracestate 不能携带可识别用户身份的信息。
var privacyKeys = []string{"ip", "uid", "token", "auth"}

// =============================================================================
// Tracestate
// =============================================================================

// Member tracestate 的一个成员。
type Member struct {
	Key   string
	Value string
}

// Tracestate 有序的厂商 key=value 列表，最近写入的排在最前。
//
// Tracestate 不是并发安全的，归属于单个工作单元。
type Tracestate struct {
	members []Member
}

// NewTracestate 创建空的 tracestate。
func NewTracestate() *Tracestate {
	return &Tracestate{}
}

// Add 校验并前插一个成员（即 addValidTracestate）。
//
// key 已存在时移动到最前并更新值；超过 32 个成员时丢弃末尾。
// 非法的 key 或 value 被忽略，返回 false。
func (ts *Tracestate) Add(key, value string) bool {
	if !ValidTracestateKey(key) || !ValidTracestateValue(value) {
		return false
	}
	ts.remove(key)
	ts.members = append(ts.members, Member{})
	copy(ts.members[1:], ts.members)
	ts.members[0] = Member{Key: key, Value: value}
	if len(ts.members) > MaxTracestateMembers {
		ts.members = ts.members[:MaxTracestateMembers]
	}
	return true
}

func (ts *Tracestate) remove(key string) {
	for i, m := range ts.members {
		if m.Key == key {
			ts.members = append(ts.members[:i], ts.members[i+1:]...)
			return
		}
	}
}

// Get 返回 key 对应的值。
func (ts *Tracestate) Get(key string) (string, bool) {
	if ts == nil {
		return "", false
	}
	for _, m := range ts.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}

// Len 成员数。
func (ts *Tracestate) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.members)
}

// Members 返回成员副本，顺序即渲染顺序。
func (ts *Tracestate) Members() []Member {
	if ts == nil {
		return nil
	}
	out := make([]Member, len(ts.members))
	copy(out, ts.members)
	return out
}

// Clone 深拷贝。
func (ts *Tracestate) Clone() *Tracestate {
	return &Tracestate{members: ts.Members()}
}

// String 渲染组合 tracestate 头：逗号连接、无尾随逗号，
// 从末尾丢弃成员直到不超过 512 字节。
func (ts *Tracestate) String() string {
	if ts.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(MaxTracestateHeaderLen)
	for _, m := range ts.members {
		need := len(m.Key) + 1 + len(m.Value)
		if b.Len() > 0 {
			need++
		}
		if b.Len()+need > MaxTracestateHeaderLen {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(m.Key)
		b.WriteByte('=')
		b.WriteString(m.Value)
	}
	return b.String()
}

// =============================================================================
// 解析
// =============================================================================

// ParseTracestate 解析一个或多个 tracestate 头。
//
// 多个头按出现顺序拼接为一个列表。成员总数超过 32 返回 ErrTracestateOverflow；
// 非法成员静默跳过；重复 key 保留先出现者。
func ParseTracestate(headers ...string) (*Tracestate, error) {
	var raw []string
	for _, h := range headers {
		for _, item := range strings.Split(h, ",") {
			item = strings.TrimSpace(item)
			if item != "" {
				raw = append(raw, item)
			}
		}
	}
	if len(raw) > MaxTracestateMembers {
		return nil, ErrTracestateOverflow
	}

	ts := NewTracestate()
	// 逆序前插以保持原有顺序
	for i := len(raw) - 1; i >= 0; i-- {
		key, value, ok := strings.Cut(raw[i], "=")
		if !ok {
			continue
		}
		ts.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return ts, nil
}

// ValidTracestateKey key 匹配 ^[0-9a-z_\-*/@]{1,256}$ 且不含隐私子串。
func ValidTracestateKey(key string) bool {
	if len(key) == 0 || len(key) > MaxTracestateKeyValueLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z':
		case c == '_', c == '-', c == '*', c == '/', c == '@':
		default:
			return false
		}
	}
	for _, p := range privacyKeys {
		if strings.Contains(key, p) {
			return false
		}
	}
	return true
}

// ValidTracestateValue value 非空、不超过 256 字节，只含可打印 ASCII（0x20-0x7E，
// 不含 ',' 与 '='），且不以空格结尾。
func ValidTracestateValue(value string) bool {
	if value == "" || len(value) > MaxTracestateKeyValueLen || value[len(value)-1] == ' ' {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < 0x20 || c > 0x7e || c == ',' || c == '=' {
			return false
		}
	}
	return true
}
