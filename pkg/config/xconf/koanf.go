package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

type koanfConfig struct {
	mu      sync.RWMutex
	k       *koanf.Koanf
	path    string
	format  Format
	opts    *Options
	isBytes bool
}

// New 从文件创建配置，按扩展名识别格式（.yaml/.yml/.json）。
func New(path string, opts ...Option) (Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	c := &koanfConfig{path: path, format: format, opts: applyOptions(opts)}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewFromBytes 从字节数据创建配置，空数据得到空配置。
func NewFromBytes(data []byte, format Format, opts ...Option) (Config, error) {
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}
	c := &koanfConfig{format: format, opts: applyOptions(opts), isBytes: true}
	k, err := c.load(data)
	if err != nil {
		return nil, err
	}
	c.k = k
	return c, nil
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// load 构建新的 koanf 实例：数据在前，环境变量覆盖在后。
func (c *koanfConfig) load(data []byte) (*koanf.Koanf, error) {
	k := koanf.New(c.opts.Delim)
	if len(data) > 0 {
		if err := loadData(k, data, c.format); err != nil {
			return nil, err
		}
	}
	if prefix := c.opts.EnvPrefix; prefix != "" {
		delim := c.opts.Delim
		provider := env.Provider(prefix, delim, func(s string) string {
			key := strings.ToLower(strings.TrimPrefix(s, prefix))
			return strings.ReplaceAll(key, "__", delim)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("%w: env: %w", ErrLoadFailed, err)
		}
	}
	return k, nil
}

func (c *koanfConfig) Client() *koanf.Koanf {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k
}

func (c *koanfConfig) Get(name string) (string, bool) {
	k := c.Client()
	if !k.Exists(name) {
		return "", false
	}
	return k.String(name), true
}

func (c *koanfConfig) Unmarshal(path string, target any) error {
	k := c.Client()
	if err := k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: c.opts.Tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// MustUnmarshal 失败时 panic，仅用于启动阶段。
func MustUnmarshal(c Config, path string, target any) {
	if err := c.Unmarshal(path, target); err != nil {
		panic(err)
	}
}

// Reload 重新读取文件；解析失败时保留旧配置。
func (c *koanfConfig) Reload() error {
	if c.isBytes {
		return ErrNotReloadable
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	k, err := c.load(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.k = k
	c.mu.Unlock()
	return nil
}

func (c *koanfConfig) Path() string {
	return c.path
}

func (c *koanfConfig) Format() Format {
	return c.format
}

func detectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}

func isValidFormat(format Format) bool {
	return format == FormatYAML || format == FormatJSON
}

func loadData(k *koanf.Koanf, data []byte, format Format) error {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return ErrUnsupportedFormat
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}
