//go:build linux
// +build linux

package core

import (
	"bytes"

	"github.com/fzft/go-edge-proxy/log"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// EchoHandler reflects every byte back to the peer. It is the default app
// handler when no upstream is configured.
type EchoHandler struct{}

type echoState struct {
	out bytes.Buffer
}

func echoStateOf(c *Connection) *echoState {
	st, ok := c.Ctx.(*echoState)
	if !ok {
		st = &echoState{}
		c.Ctx = st
	}
	return st
}

func (EchoHandler) OnReadable(c *Connection) {
	st := echoStateOf(c)
	if !drainSocket(c, &st.out) {
		return
	}
	if st.out.Len() > 0 {
		c.DataWantSend()
	}
}

func (EchoHandler) OnWritable(c *Connection) {
	flushSocket(c, &echoStateOf(c).out)
}

// drainSocket reads everything currently queued on the socket into out. It
// returns false when the peer is gone or the read failed, after marking the
// connection for teardown.
func drainSocket(c *Connection, out *bytes.Buffer) bool {
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(c.Fd(), buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			if IsTemporaryError(err) {
				return true
			}
			log.Logger.Debug("read error", zap.Int("fd", c.Fd()), zap.Error(err))
			c.SetError()
			c.SetFlag(FlagNotifyUpper)
			return false
		}
		if n == 0 {
			// peer closed
			c.SetError()
			c.SetFlag(FlagNotifyUpper)
			return false
		}
	}
}

// flushSocket writes out's contents to the socket, keeping send interest
// armed while data remains. A successful send while the connect was still
// unconfirmed is proof the peer accepted.
func flushSocket(c *Connection, out *bytes.Buffer) {
	for out.Len() > 0 {
		n, err := unix.Write(c.Fd(), out.Bytes())
		if n > 0 {
			out.Next(n)
			c.ClearFlag(FlagWaitL4Conn)
		}
		if err != nil {
			if IsTemporaryError(err) {
				c.DataWantSend()
				return
			}
			log.Logger.Debug("write error", zap.Int("fd", c.Fd()), zap.Error(err))
			c.SetError()
			c.SetFlag(FlagNotifyUpper)
			return
		}
	}
	c.DataStopSend()
}
