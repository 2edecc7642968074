// Package xconf 基于 koanf 的配置加载。
//
// 加载顺序：文件或字节数据 → 环境变量覆盖（可选，WithEnvPrefix）。
// 环境变量名去掉前缀后转小写，"__" 映射为层级分隔符：
//
//	XAPM_SERVER_URL        → server_url
//	XAPM_LABELS__REGION    → labels.region
//
// Get 提供 agent 需要的最小读取接口 get(name) -> (string, bool)；
// 结构化读取使用 Unmarshal（mapstructure，允许弱类型转换）。
//
// Reload 并发安全；Watch 基于 fsnotify 监视文件所在目录并防抖重载。
// 从字节数据创建的 Config 不支持 Reload/Watch。
package xconf

import "github.com/knadh/koanf/v2"

// Format 配置格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 配置接口
type Config interface {
	// Client 返回底层 koanf 实例（快照语义，Reload 后指向旧配置）。
	Client() *koanf.Koanf

	// Get 读取单个键的字符串值，键不存在时返回 false。
	Get(name string) (string, bool)

	// Unmarshal 将 path 下的配置反序列化到 target，path 为空表示整个配置。
	Unmarshal(path string, target any) error

	// Reload 重新加载文件与环境变量覆盖。
	Reload() error

	// Path 配置文件路径，字节数据创建时为空。
	Path() string

	// Format 配置格式
	Format() Format
}
