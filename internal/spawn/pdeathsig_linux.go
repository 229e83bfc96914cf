//go:build linux

package spawn

import "syscall"

// execSysAttr ties helper lifetimes to this process: the child gets SIGTERM
// if we crash.
func execSysAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
