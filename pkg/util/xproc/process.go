// Package xproc 当前进程与主机的静态信息，用于 APM metadata 文档。
//
// 所有结果在首次调用时解析并缓存（包括失败得到的空值）。
package xproc

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
)

// 测试替换点
var (
	osExecutable = os.Executable
	osHostname   = os.Hostname
)

var (
	nameOnce  sync.Once
	nameValue string
)

// ProcessID 当前进程 ID
func ProcessID() int {
	return os.Getpid()
}

// ProcessName 进程名（不含路径），优先 os.Executable，回退 os.Args[0]。
func ProcessName() string {
	nameOnce.Do(func() {
		nameValue = resolveName()
	})
	return nameValue
}

func resolveName() string {
	if exe, err := osExecutable(); err == nil && exe != "" {
		if name := baseName(exe); name != "" {
			return name
		}
	}
	if len(os.Args) == 0 {
		return ""
	}
	return baseName(os.Args[0])
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	name := filepath.Base(path)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// Info 进程与主机信息
type Info struct {
	PID          int
	PPID         int
	Title        string
	Argv         []string
	Hostname     string
	Platform     string
	Architecture string
	GoVersion    string
}

// Snapshot 返回当前进程信息，Argv 为副本。
func Snapshot() Info {
	host, _ := osHostname()
	return Info{
		PID:          ProcessID(),
		PPID:         os.Getppid(),
		Title:        ProcessName(),
		Argv:         slices.Clone(os.Args),
		Hostname:     host,
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		GoVersion:    runtime.Version(),
	}
}
