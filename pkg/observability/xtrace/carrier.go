package xtrace

import (
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// =============================================================================
// 头名称
// =============================================================================

const (
	// HeaderTraceparent W3C 标准 traceparent 头。
	HeaderTraceparent = "traceparent"
	// HeaderElasticTraceparent 兼容 Elastic APM 代理使用的 traceparent 头。
	HeaderElasticTraceparent = "elastic-apm-traceparent"
	// HeaderTracestate W3C tracestate 头，可出现多次。
	HeaderTracestate = "tracestate"
	// HeaderTraceresponse W3C traceresponse 响应头。
	HeaderTraceresponse = "traceresponse"
)

// =============================================================================
// Carrier
// =============================================================================

// Carrier 传输层头的读写抽象。
type Carrier interface {
	// Values 返回 key 的全部取值（可能多次出现）。
	Values(key string) []string
	// Set 覆盖写入 key。
	Set(key, value string)
}

// HeaderCarrier 适配 http.Header。
type HeaderCarrier http.Header

// Values 实现 Carrier。
func (c HeaderCarrier) Values(key string) []string {
	return http.Header(c).Values(key)
}

// Set 实现 Carrier。
func (c HeaderCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// MetadataCarrier 适配 gRPC metadata（key 统一小写）。
type MetadataCarrier metadata.MD

// Values 实现 Carrier。
func (c MetadataCarrier) Values(key string) []string {
	return metadata.MD(c).Get(key)
}

// Set 实现 Carrier。
func (c MetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

// MapCarrier 适配消息头 map（如 MQ 消息属性）。key 大小写不敏感。
type MapCarrier map[string]string

// Values 实现 Carrier。
func (c MapCarrier) Values(key string) []string {
	if v, ok := c[key]; ok {
		return []string{v}
	}
	for k, v := range c {
		if strings.EqualFold(k, key) {
			return []string{v}
		}
	}
	return nil
}

// Set 实现 Carrier。
func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

// firstValue 返回第一个非空取值。
func firstValue(c Carrier, key string) string {
	for _, v := range c.Values(key) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
