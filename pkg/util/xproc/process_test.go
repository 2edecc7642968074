package xproc_test

import (
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omeyang/xapm/pkg/util/xproc"
)

func TestProcessName_FromExecutable(t *testing.T) {
	restore := xproc.ResetForTest(
		func() (string, error) { return "/usr/local/bin/checkout", nil },
		func() (string, error) { return "node-1", nil })
	t.Cleanup(restore)

	assert.Equal(t, "checkout", xproc.ProcessName())
	assert.Equal(t, os.Getpid(), xproc.ProcessID())
}

func TestProcessName_FallbackToArgs(t *testing.T) {
	restore := xproc.ResetForTest(
		func() (string, error) { return "", errors.New("no exe") },
		func() (string, error) { return "", errors.New("no host") })
	t.Cleanup(restore)

	want := ""
	if len(os.Args) > 0 && os.Args[0] != "" {
		want = xproc.Snapshot().Title
	}
	assert.Equal(t, want, xproc.ProcessName())
}

func TestSnapshot(t *testing.T) {
	restore := xproc.ResetForTest(
		func() (string, error) { return "/opt/app/billing", nil },
		func() (string, error) { return "node-7", nil })
	t.Cleanup(restore)

	info := xproc.Snapshot()
	assert.Equal(t, "billing", info.Title)
	assert.Equal(t, "node-7", info.Hostname)
	assert.Equal(t, runtime.GOOS, info.Platform)
	assert.Equal(t, runtime.GOARCH, info.Architecture)
	assert.Equal(t, os.Getppid(), info.PPID)
	assert.Equal(t, os.Args, info.Argv)

	info.Argv[0] = "mutated"
	assert.NotEqual(t, "mutated", os.Args[0])
}
