//go:build linux
// +build linux

package core

import (
	"errors"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

func isFDValid(fd int) bool {
	// Try to get the flags of the file descriptor
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

// IsTemporaryError checks if the error is temporary, e.g., EAGAIN or EWOULDBLOCK.
func IsTemporaryError(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func CloseFd(fd int) error {
	if isFDValid(fd) {
		if err := unix.Close(fd); err != nil {
			return err
		}
	}
	return nil
}

// sockaddrString renders a unix.Sockaddr as host:port.
func sockaddrString(sa unix.Sockaddr) string {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IPv4(addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3])
		return net.JoinHostPort(ip.String(), strconv.Itoa(addr.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(addr.Addr[:]).String(), strconv.Itoa(addr.Port))
	default:
		return ""
	}
}

// localAddrString reads back the bound address of fd.
func localAddrString(fd int) string {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}
