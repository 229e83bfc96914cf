package runtime

import "os"

// SetTitle updates the kernel's view of the process name (16-byte cap on
// Linux). Best-effort: failures are not actionable.
func SetTitle(name string) {
	if len(name) > 15 {
		name = name[:15]
	}
	_ = os.WriteFile("/proc/self/comm", []byte(name), 0) //nolint:errcheck // fire-and-forget
}
