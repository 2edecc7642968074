package xconf_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xapm/pkg/config/xconf"
)

const sampleYAML = `
service_name: checkout
sample_rate: 0.5
labels:
  region: eu
`

type agentSection struct {
	ServiceName string            `koanf:"service_name"`
	SampleRate  float64           `koanf:"sample_rate"`
	Labels      map[string]string `koanf:"labels"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestNew_YAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "apm.yaml", sampleYAML)
	cfg, err := xconf.New(p)
	require.NoError(t, err)
	assert.Equal(t, xconf.FormatYAML, cfg.Format())
	assert.Equal(t, p, cfg.Path())

	v, ok := cfg.Get("service_name")
	assert.True(t, ok)
	assert.Equal(t, "checkout", v)

	_, ok = cfg.Get("missing")
	assert.False(t, ok)

	var sec agentSection
	require.NoError(t, cfg.Unmarshal("", &sec))
	assert.Equal(t, "checkout", sec.ServiceName)
	assert.InDelta(t, 0.5, sec.SampleRate, 1e-9)
	assert.Equal(t, "eu", sec.Labels["region"])
}

func TestNew_Errors(t *testing.T) {
	_, err := xconf.New("")
	assert.ErrorIs(t, err, xconf.ErrEmptyPath)

	_, err = xconf.New("apm.toml")
	assert.ErrorIs(t, err, xconf.ErrUnsupportedFormat)

	_, err = xconf.New(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, xconf.ErrLoadFailed)

	p := writeFile(t, t.TempDir(), "bad.json", "{not json")
	_, err = xconf.New(p)
	assert.ErrorIs(t, err, xconf.ErrParseFailed)
}

func TestNewFromBytes(t *testing.T) {
	cfg, err := xconf.NewFromBytes([]byte(`{"server_url":"http://apm:8200"}`), xconf.FormatJSON)
	require.NoError(t, err)
	v, ok := cfg.Get("server_url")
	assert.True(t, ok)
	assert.Equal(t, "http://apm:8200", v)
	assert.ErrorIs(t, cfg.Reload(), xconf.ErrNotReloadable)

	empty, err := xconf.NewFromBytes(nil, xconf.FormatYAML)
	require.NoError(t, err)
	_, ok = empty.Get("server_url")
	assert.False(t, ok)

	_, err = xconf.NewFromBytes(nil, "ini")
	assert.ErrorIs(t, err, xconf.ErrUnsupportedFormat)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("XAPM_SERVICE_NAME", "from-env")
	t.Setenv("XAPM_LABELS__ZONE", "b")

	cfg, err := xconf.NewFromBytes([]byte(sampleYAML), xconf.FormatYAML, xconf.WithEnvPrefix("XAPM_"))
	require.NoError(t, err)

	var sec agentSection
	require.NoError(t, cfg.Unmarshal("", &sec))
	assert.Equal(t, "from-env", sec.ServiceName)
	assert.Equal(t, "eu", sec.Labels["region"])
	assert.Equal(t, "b", sec.Labels["zone"])
}

func TestUnmarshal_WrongType(t *testing.T) {
	cfg, err := xconf.NewFromBytes([]byte(`sample_rate: {a: 1}`), xconf.FormatYAML)
	require.NoError(t, err)
	var sec agentSection
	assert.ErrorIs(t, cfg.Unmarshal("", &sec), xconf.ErrUnmarshalFailed)
	assert.Panics(t, func() { xconf.MustUnmarshal(cfg, "", &sec) })
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "apm.yaml", sampleYAML)
	cfg, err := xconf.New(p)
	require.NoError(t, err)

	writeFile(t, dir, "apm.yaml", "service_name: billing\n")
	require.NoError(t, cfg.Reload())
	v, _ := cfg.Get("service_name")
	assert.Equal(t, "billing", v)

	writeFile(t, dir, "apm.yaml", "service_name: [\n")
	assert.Error(t, cfg.Reload())
	v, _ = cfg.Get("service_name")
	assert.Equal(t, "billing", v)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "apm.yaml", sampleYAML)
	cfg, err := xconf.New(p)
	require.NoError(t, err)

	reloaded := make(chan error, 4)
	w, err := xconf.Watch(cfg, func(_ xconf.Config, err error) {
		select {
		case reloaded <- err:
		default:
		}
	}, xconf.WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	w.Start()
	t.Cleanup(func() { assert.NoError(t, w.Stop()) })

	writeFile(t, dir, "apm.yaml", "service_name: watched\n")

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reload not observed")
	}
	v, _ := cfg.Get("service_name")
	assert.Equal(t, "watched", v)
}

func TestWatch_NotReloadable(t *testing.T) {
	cfg, err := xconf.NewFromBytes(nil, xconf.FormatJSON)
	require.NoError(t, err)
	_, err = xconf.Watch(cfg, nil)
	assert.ErrorIs(t, err, xconf.ErrNotReloadable)
}

func TestWatch_StopIdempotent(t *testing.T) {
	p := writeFile(t, t.TempDir(), "apm.json", `{}`)
	cfg, err := xconf.New(p)
	require.NoError(t, err)
	w, err := xconf.Watch(cfg, nil)
	require.NoError(t, err)
	w.Start()
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
