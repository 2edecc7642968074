package xintake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"

	"github.com/omeyang/xapm/pkg/resilience/xbreaker"
	"github.com/omeyang/xapm/pkg/resilience/xretry"
)

// =============================================================================
// 常量
// =============================================================================

const (
	// EventsPath intake v2 事件上报路径
	EventsPath = "/intake/v2/events"

	// ContentTypeNDJSON 上报请求体类型
	ContentTypeNDJSON = "application/x-ndjson"

	// DefaultTimeout 单次请求超时
	DefaultTimeout = time.Second

	// DefaultUserAgent 未配置 UserAgent 时使用
	DefaultUserAgent = "xapm-go"

	// DefaultPingAttempts Ping 的最大尝试次数
	DefaultPingAttempts = 3

	defaultPingDelay = 100 * time.Millisecond
	breakerName      = "xintake"
)

// =============================================================================
// Transport
// =============================================================================

// Request 一个待上报的批次。
type Request struct {
	// Body NDJSON 请求体（未压缩）
	Body []byte
	// Events 批次中的文档数（含 metadata）
	Events int
	// BatchID 批次序号，仅用于日志关联，0 表示未分配
	BatchID int64
}

// Response collector 响应。
type Response struct {
	StatusCode int
	Body       []byte
}

//go:generate mockgen -source=transport.go -destination=mock_transport_test.go -package=xintake Transport

// Transport collector 传输层。
type Transport interface {
	// Send 上报一个批次。非 2xx 返回 *StatusError（包装 ErrUnexpectedStatus），
	// 网络错误包装 ErrTransport。
	Send(ctx context.Context, req *Request) (*Response, error)

	// Ping 向 server_url 发送 GET 健康检查。
	Ping(ctx context.Context) (*Response, error)

	// Endpoint 事件上报地址
	Endpoint() string
}

// TransportConfig RestyTransport 配置。
type TransportConfig struct {
	ServerURL   string
	SecretToken string
	// Timeout 单次请求超时，<= 0 时使用 DefaultTimeout
	Timeout time.Duration
	// Compress 启用 gzip 请求体
	Compress bool
	// UserAgent 形如 "xapm-go/1.0.0"
	UserAgent string
}

// TransportOption RestyTransport 选项。
type TransportOption func(*RestyTransport)

// WithBreaker 替换默认熔断器。
func WithBreaker(b *xbreaker.Breaker) TransportOption {
	return func(t *RestyTransport) {
		if b != nil {
			t.breaker = b
		}
	}
}

// WithHTTPClient 使用自定义 *http.Client（测试或自定义 TLS）。
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *RestyTransport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithPingAttempts 设置 Ping 最大尝试次数。
func WithPingAttempts(n uint) TransportOption {
	return func(t *RestyTransport) {
		if n > 0 {
			t.pingAttempts = n
		}
	}
}

// =============================================================================
// RestyTransport
// =============================================================================

// RestyTransport 基于 go-resty 的 Transport，并发安全。
//
// 请求本身不重试（至多一次）；连续失败由熔断器快速拒绝。
// 4xx（429 除外）说明 collector 可用，不计入熔断失败。
type RestyTransport struct {
	serverURL    string
	endpoint     string
	compress     bool
	pingAttempts uint
	httpClient   *http.Client

	client  *resty.Client
	breaker *xbreaker.Breaker
}

// NewRestyTransport 创建 RestyTransport。ServerURL 为空返回 ErrMissingServerURL。
func NewRestyTransport(cfg TransportConfig, opts ...TransportOption) (*RestyTransport, error) {
	serverURL := strings.TrimSpace(cfg.ServerURL)
	if serverURL == "" {
		return nil, ErrMissingServerURL
	}
	serverURL = strings.TrimSuffix(serverURL, "/")

	t := &RestyTransport{
		serverURL:    serverURL,
		endpoint:     serverURL + EventsPath,
		compress:     cfg.Compress,
		pingAttempts: DefaultPingAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.breaker == nil {
		t.breaker = xbreaker.New(breakerName, xbreaker.WithSuccessFunc(countsAsSuccess))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	if t.httpClient != nil {
		t.client = resty.NewWithClient(t.httpClient)
	} else {
		t.client = resty.New()
	}
	t.client.
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent)
	if cfg.SecretToken != "" {
		t.client.SetAuthToken(cfg.SecretToken)
	}
	return t, nil
}

// Endpoint 事件上报地址
func (t *RestyTransport) Endpoint() string {
	return t.endpoint
}

// ServerURL 去掉末尾 "/" 的 collector 地址
func (t *RestyTransport) ServerURL() string {
	return t.serverURL
}

// Breaker 上报使用的熔断器
func (t *RestyTransport) Breaker() *xbreaker.Breaker {
	return t.breaker
}

// Send 上报一个批次。熔断打开时直接返回 *xbreaker.BreakerError。
func (t *RestyTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	body := req.Body
	r := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", ContentTypeNDJSON)
	if t.compress {
		gz, err := gzipBody(body)
		if err != nil {
			return nil, err
		}
		body = gz
		r.SetHeader("Content-Encoding", "gzip")
	}
	r.SetBody(body)

	return xbreaker.Execute(ctx, t.breaker, func() (*Response, error) {
		return do(r, http.MethodPost, t.endpoint)
	})
}

// Ping 对 server_url 发送 GET，5xx 与网络错误按退避重试。
func (t *RestyTransport) Ping(ctx context.Context) (*Response, error) {
	return xretry.DoWithData(ctx, func() (*Response, error) {
		return do(t.client.R().SetContext(ctx), http.MethodGet, t.serverURL)
	},
		xretry.Attempts(t.pingAttempts),
		xretry.Delay(defaultPingDelay),
		xretry.LastErrorOnly(true),
	)
}

func do(r *resty.Request, method, url string) (*Response, error) {
	resp, err := r.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	out := &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}
	if out.StatusCode < 200 || out.StatusCode > 299 {
		return out, newStatusError(out.StatusCode, out.Body)
	}
	return out, nil
}

// countsAsSuccess 熔断器成功判定：只有网络错误与可重试状态码计为失败。
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Retryable()
	}
	return false
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("xintake: gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("xintake: gzip: %w", err)
	}
	return buf.Bytes(), nil
}

var _ Transport = (*RestyTransport)(nil)
