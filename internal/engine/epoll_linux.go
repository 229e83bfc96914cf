//go:build linux

package engine

import (
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// epollInterface is the Linux backend. Level-triggered: the engine reads one
// frame per wakeup and epoll re-reports fds that still have buffered data.
type epollInterface struct{}

func (epollInterface) Name() string { return "epoll" }

func (epollInterface) NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	evfd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &epollPoller{epfd: epfd, evfd: evfd}
	if err := p.add(evfd); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

type epollPoller struct {
	mu     sync.Mutex
	epfd   int
	evfd   int
	closed bool
}

func (p *epollPoller) add(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd), //nolint:gosec // G115: fd fits
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Add(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.add(fd)
}

func (p *epollPoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeout time.Duration) ([]int, error) {
	events := make([]unix.EpollEvent, 64)
	n, err := unix.EpollWait(p.epfd, events, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	var ready []int
	for _, ev := range events[:n] {
		fd := int(ev.Fd)
		if fd == p.evfd {
			var buf [8]byte
			_, _ = unix.Read(p.evfd, buf[:]) //nolint:errcheck // drain only
			continue
		}
		ready = append(ready, fd)
	}
	return ready, nil
}

func (p *epollPoller) Wake() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, err := unix.Write(p.evfd, one[:])
	return err
}

func (p *epollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	unix.Close(p.evfd)
	return unix.Close(p.epfd)
}
