//go:build linux
// +build linux

package core

import (
	"fmt"
	"os"

	"github.com/fzft/go-edge-proxy/log"
	"github.com/fzft/go-edge-proxy/metrics"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLPRI | unix.EPOLLIN
	writeEvents = unix.EPOLLOUT
)

// epollMux implements Mux on top of epoll_ctl. It mirrors the currently
// registered event mask per fd so enable/disable translate into the right
// ADD/MOD/DEL, and a poll request forces a MOD even when the mask did not
// change, which makes the kernel re-report a still-pending condition.
type epollMux struct {
	epollFd  int
	interest map[int]uint32
}

func newEpollMux(epollFd int) *epollMux {
	return &epollMux{
		epollFd:  epollFd,
		interest: make(map[int]uint32),
	}
}

func (m *epollMux) WantRecv(fd int) { m.apply(fd, m.interest[fd]|readEvents, false) }

func (m *epollMux) StopRecv(fd int) { m.apply(fd, m.interest[fd]&^uint32(readEvents), false) }

func (m *epollMux) PollRecv(fd int) { m.apply(fd, m.interest[fd]|readEvents, true) }

func (m *epollMux) WantSend(fd int) { m.apply(fd, m.interest[fd]|writeEvents, false) }

func (m *epollMux) StopSend(fd int) { m.apply(fd, m.interest[fd]&^uint32(writeEvents), false) }

func (m *epollMux) PollSend(fd int) { m.apply(fd, m.interest[fd]|writeEvents, true) }

func (m *epollMux) apply(fd int, events uint32, force bool) {
	prev, ok := m.interest[fd]

	var op int
	switch {
	case !ok:
		if events == 0 {
			return
		}
		op = unix.EPOLL_CTL_ADD
	case events == 0:
		op = unix.EPOLL_CTL_DEL
	case force || prev != events:
		op = unix.EPOLL_CTL_MOD
	default:
		return
	}

	if err := m.ctl(op, fd, events); err != nil {
		log.Logger.Error("epoll_ctl failed", zap.Int("fd", fd), zap.Error(err))
	}
	if events == 0 {
		delete(m.interest, fd)
	} else {
		m.interest[fd] = events
	}
}

func (m *epollMux) ctl(op, fd int, events uint32) error {
	var name string
	var ev *unix.EpollEvent
	switch op {
	case unix.EPOLL_CTL_ADD:
		name = "add"
	case unix.EPOLL_CTL_MOD:
		name = "mod"
	case unix.EPOLL_CTL_DEL:
		name = "del"
	}
	if op != unix.EPOLL_CTL_DEL {
		ev = &unix.EpollEvent{Fd: int32(fd), Events: events}
	}
	metrics.PollUpdates.WithLabelValues(name).Inc()
	return os.NewSyscallError("epoll_ctl "+name, unix.EpollCtl(m.epollFd, op, fd, ev))
}

// AddRead registers a descriptor the dispatcher does not manage (listener,
// eventfd) for read events.
func (m *epollMux) AddRead(fd int) error {
	if err := m.ctl(unix.EPOLL_CTL_ADD, fd, readEvents); err != nil {
		return err
	}
	m.interest[fd] = readEvents
	return nil
}

// Forget drops the fd from epoll and from the mirror; used on teardown.
func (m *epollMux) Forget(fd int) error {
	if _, ok := m.interest[fd]; !ok {
		return nil
	}
	delete(m.interest, fd)
	return m.ctl(unix.EPOLL_CTL_DEL, fd, 0)
}

// CloseAll closes every registered file descriptor.
func (m *epollMux) CloseAll() error {
	var errs MultiError

	for fd := range m.interest {
		if err := m.Forget(fd); err != nil {
			errs = append(errs, fmt.Errorf("delete fd: %d error: %v", fd, err))
			continue
		}
		if err := unix.Close(fd); err != nil {
			errs = append(errs, fmt.Errorf("close fd: %d error: %v", fd, err))
			continue
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
