package engine

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterface is the portable backend, available on every platform the
// runtime builds for.
type pollInterface struct{}

func (pollInterface) Name() string { return "poll" }

func (pollInterface) NewPoller() (Poller, error) {
	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		return nil, err
	}
	unix.CloseOnExec(pipe[0])
	unix.CloseOnExec(pipe[1])

	return &pollPoller{wakeR: pipe[0], wakeW: pipe[1]}, nil
}

type pollPoller struct {
	mu     sync.Mutex
	fds    []int
	wakeR  int
	wakeW  int
	closed bool
}

func (p *pollPoller) Add(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("poller closed")
	}
	p.fds = append(p.fds, fd)
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, have := range p.fds {
		if have == fd {
			p.fds = append(p.fds[:i], p.fds[i+1:]...)
			break
		}
	}
	return nil
}

func (p *pollPoller) Wait(timeout time.Duration) ([]int, error) {
	p.mu.Lock()
	pfds := make([]unix.PollFd, 0, len(p.fds)+1)
	pfds = append(pfds, unix.PollFd{Fd: int32(p.wakeR), Events: unix.POLLIN}) //nolint:gosec // G115: fd fits
	for _, fd := range p.fds {
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}) //nolint:gosec // G115: fd fits
	}
	p.mu.Unlock()

	n, err := unix.Poll(pfds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	var ready []int
	for i, pfd := range pfds {
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) == 0 {
			continue
		}
		if i == 0 {
			// Wake pipe: drain and skip.
			var buf [16]byte
			_, _ = unix.Read(p.wakeR, buf[:]) //nolint:errcheck // drain only
			continue
		}
		ready = append(ready, int(pfd.Fd))
	}
	return ready, nil
}

func (p *pollPoller) Wake() error {
	_, err := unix.Write(p.wakeW, []byte{0})
	return err
}

func (p *pollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	unix.Close(p.wakeR)
	unix.Close(p.wakeW)
	return nil
}
