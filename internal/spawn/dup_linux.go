//go:build linux

package spawn

import "golang.org/x/sys/unix"

// dupTo duplicates oldfd onto newfd. Linux builds go through dup3 because
// dup2 is absent from some 64-bit syscall tables.
func dupTo(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}
