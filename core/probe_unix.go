//go:build linux
// +build linux

package core

import (
	"syscall"

	"github.com/fzft/go-edge-proxy/log"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// sockProber checks connect completion through SO_ERROR. It never blocks:
// a still-connecting socket keeps write interest armed so the completion is
// reported as writability on a later wake-up.
type sockProber struct{}

func (sockProber) Probe(c *Connection) ProbeResult {
	soerr, err := unix.GetsockoptInt(c.Fd(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		c.SetError()
		c.SetFlag(FlagNotifyUpper)
		return ProbeStillPending
	}

	switch syscall.Errno(soerr) {
	case 0:
		c.ClearFlag(FlagWaitL4Conn)
		return ProbeConfirmed
	case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
		c.SockWantSend()
		return ProbeStillPending
	default:
		log.Logger.Debug("connect probe failed",
			zap.Int("fd", c.Fd()), zap.String("errno", syscall.Errno(soerr).Error()))
		c.SetError()
		c.SetFlag(FlagNotifyUpper)
		return ProbeStillPending
	}
}
