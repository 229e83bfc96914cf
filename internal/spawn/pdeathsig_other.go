//go:build !linux

package spawn

import "syscall"

// execSysAttr is empty on non-Linux platforms (Pdeathsig is Linux-only).
func execSysAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}
