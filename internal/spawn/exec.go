package spawn

import (
	"fmt"
	"os"
)

// Execute launches an arbitrary program with an explicit argument vector
// and environment, inheriting the standard streams. Unlike Create, the
// launched program is not part of the runtime: no port handoff, no
// registry record, no READY handshake. Used for role-managed helper
// programs.
func Execute(path string, argv, env []string) (int, error) {
	attr := &os.ProcAttr{
		Env:   env,
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys:   execSysAttr(),
	}

	p, err := os.StartProcess(path, argv, attr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrExecFailed, path, err)
	}

	// Detach: the helper is reaped here so it never lingers as a zombie,
	// but its exit status is not the runtime's concern.
	go p.Wait()
	return p.Pid, nil
}
