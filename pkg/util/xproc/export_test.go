package xproc

import "sync"

// ResetForTest 替换可执行文件与主机名来源并清空缓存。
func ResetForTest(exe func() (string, error), host func() (string, error)) func() {
	oldExe, oldHost := osExecutable, osHostname
	osExecutable, osHostname = exe, host
	nameOnce = sync.Once{}
	return func() {
		osExecutable, osHostname = oldExe, oldHost
		nameOnce = sync.Once{}
	}
}
