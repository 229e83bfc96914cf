//go:build !linux

package spawn

import "golang.org/x/sys/unix"

// dupTo duplicates oldfd onto newfd.
func dupTo(oldfd, newfd int) error {
	return unix.Dup2(oldfd, newfd)
}
