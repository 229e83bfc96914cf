//go:build !linux

package runtime

// SetTitle is a no-op where the platform offers no cheap way to rename the
// running process.
func SetTitle(_ string) {}
