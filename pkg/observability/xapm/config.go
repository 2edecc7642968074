package xapm

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/omeyang/xapm/pkg/config/xconf"
	"github.com/omeyang/xapm/pkg/observability/xsampling"
	"github.com/omeyang/xapm/pkg/observability/xtrace"
)

// =============================================================================
// 默认值
// =============================================================================

const (
	DefaultServiceVersion    = "v0.0.1"
	DefaultEnvironment       = "dev"
	DefaultSampleRate        = 1.0
	DefaultMaxPendingWait    = time.Second
	DefaultRequestTimeout    = time.Second
	DefaultFailureStatusCode = 500
	DefaultQueueSize         = 64
)

// Config agent 配置，字段标签与配置文件键一致。
type Config struct {
	ServiceName      string `koanf:"service_name"`
	ServiceVersion   string `koanf:"service_version"`
	Environment      string `koanf:"environment"`
	Framework        string `koanf:"framework"`
	FrameworkVersion string `koanf:"framework_version"`

	ServerURL   string `koanf:"server_url"`
	SecretToken string `koanf:"secret_token"`

	// SampleRate 固定采样率 [0, 1]
	SampleRate float64 `koanf:"sample_rate"`
	Debug      bool    `koanf:"debug"`

	// MaxPendingWait 同步上报最多等待的时间
	MaxPendingWait time.Duration `koanf:"max_pending_wait"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// FailureStatusCode 出站 HTTP 调用网络失败时记录的状态码
	FailureStatusCode int `koanf:"failure_status_code"`

	// TracePolicy traceparent 校验失败的处理：soft（默认）或 strict
	TracePolicy string `koanf:"trace_policy"`

	// Async 为 true 时批次进入后台队列发送
	Async     bool `koanf:"async"`
	QueueSize int  `koanf:"queue_size"`
	Compress  bool `koanf:"compress"`

	UserID string            `koanf:"user_id"`
	Labels map[string]string `koanf:"labels"`
}

// DefaultConfig 返回带默认值的配置
func DefaultConfig() Config {
	return Config{
		ServiceVersion:    DefaultServiceVersion,
		Environment:       DefaultEnvironment,
		SampleRate:        DefaultSampleRate,
		MaxPendingWait:    DefaultMaxPendingWait,
		RequestTimeout:    DefaultRequestTimeout,
		FailureStatusCode: DefaultFailureStatusCode,
		TracePolicy:       xtrace.PolicySoft.String(),
		QueueSize:         DefaultQueueSize,
	}
}

// LoadConfig 在默认值之上读取 c 的全部配置并校验。
func LoadConfig(c xconf.Config) (Config, error) {
	cfg := DefaultConfig()
	if c == nil {
		return cfg, fmt.Errorf("%w: nil config source", ErrInvalidConfig)
	}
	if err := c.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 校验配置。server_url 的缺失由 intake 在构造传输层时报告。
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.ServiceName) == "" {
		problems = append(problems, "service_name is required")
	}
	if err := xsampling.ValidateRate(c.SampleRate); err != nil {
		problems = append(problems, fmt.Sprintf("sample_rate %v out of [0, 1]", c.SampleRate))
	}
	if c.MaxPendingWait <= 0 {
		problems = append(problems, "max_pending_wait must be positive")
	}
	if c.RequestTimeout < 0 {
		problems = append(problems, "request_timeout must not be negative")
	}
	if c.FailureStatusCode < 100 || c.FailureStatusCode > 599 {
		problems = append(problems, fmt.Sprintf("failure_status_code %d is not an HTTP status", c.FailureStatusCode))
	}
	if _, err := xtrace.ParsePolicy(c.TracePolicy); err != nil {
		problems = append(problems, fmt.Sprintf("trace_policy %q must be soft or strict", c.TracePolicy))
	}
	if c.Async && c.QueueSize <= 0 {
		problems = append(problems, "queue_size must be positive in async mode")
	}
	if c.ServerURL != "" {
		if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("server_url %q is not an absolute URL", c.ServerURL))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Policy 解析后的 traceparent 策略，非法值按 soft。
func (c Config) Policy() xtrace.Policy {
	p, _ := xtrace.ParsePolicy(c.TracePolicy)
	return p
}

// DefaultTransactionName 默认事务名：服务名 + 当前小时（YYYYMMDDHH）。
func (c Config) DefaultTransactionName(now time.Time) string {
	return c.ServiceName + now.Format("2006010215")
}
