package spawn

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// ErrDaemonize reports a failure while detaching from the controlling
// terminal.
var ErrDaemonize = errors.New("spawn: daemonize failed")

const daemonEnv = "SWARM_DAEMONIZED"

// Daemonize detaches the process from its terminal. The first invocation
// re-execs the binary with a marker variable and exits; the re-exec'd copy
// becomes a session leader, clears its umask, and points stdin and stdout
// at the null device. Stderr is left alone so startup failures still land
// somewhere visible until the log file takes over.
func Daemonize() error {
	if os.Getenv(daemonEnv) == "" {
		exe, err := executable()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDaemonize, err)
		}
		cmd := exec.Command(exe, os.Args[1:]...)
		cmd.Env = append(os.Environ(), daemonEnv+"=1")
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("%w: %v", ErrDaemonize, err)
		}
		osExit(0)
	}

	if _, err := unix.Setsid(); err != nil {
		return fmt.Errorf("%w: setsid: %v", ErrDaemonize, err)
	}
	unix.Umask(0)

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrDaemonize, os.DevNull, err)
	}
	fd := int(devnull.Fd())
	for _, std := range []int{0, 1} {
		if err := dupTo(fd, std); err != nil {
			return fmt.Errorf("%w: dup to fd %d: %v", ErrDaemonize, std, err)
		}
	}
	if fd > 2 {
		devnull.Close()
	}
	return nil
}
