package xlog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别，与 slog.Level 取值相同
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"":        LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// AgentLevel agent 日志级别：debug 配置打开时为 Debug，否则只输出 Warn 及以上，
// 避免埋点日志淹没业务日志。
func AgentLevel(debug bool) Level {
	if debug {
		return LevelDebug
	}
	return LevelWarn
}

func (l Level) String() string {
	return slog.Level(l).String()
}

// UnmarshalText 供 xconf 反序列化 level 字段。
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel 大小写不敏感；空串为 Info。
func ParseLevel(s string) (Level, error) {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return LevelInfo, fmt.Errorf("xlog: unknown level %q", s)
}
