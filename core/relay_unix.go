//go:build linux
// +build linux

package core

import (
	"bytes"
	"fmt"
	"net"

	"github.com/fzft/go-edge-proxy/log"
	"github.com/fzft/go-edge-proxy/metrics"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// RelayHandler pipes bytes between each accepted connection and an upstream
// connection dialed on its behalf. Both legs live in the same poll shard, so
// arming the other leg's polling is deferred through the wake-up queue
// rather than reconciled inside the current dispatch.
type RelayHandler struct {
	poll      *Poll
	upstream  string
	sendProxy bool
}

func NewRelayHandler(poll *Poll, upstream string, sendProxy bool) *RelayHandler {
	return &RelayHandler{poll: poll, upstream: upstream, sendProxy: sendProxy}
}

type relayState struct {
	peer *Connection  // the other leg, nil once it is gone
	out  bytes.Buffer // bytes waiting to be written to this leg
}

func relayStateOf(c *Connection) *relayState {
	st, ok := c.Ctx.(*relayState)
	if !ok {
		st = &relayState{}
		c.Ctx = st
	}
	return st
}

// OnSession dials the upstream once the accepted leg's session completes.
func (h *RelayHandler) OnSession(c *Connection) {
	up, err := h.dialUpstream(c)
	if err != nil {
		log.Logger.Warn("upstream dial failed",
			zap.String("upstream", h.upstream), zap.Error(err))
		c.SetError()
		c.SetFlag(FlagNotifyUpper)
		return
	}
	relayStateOf(c).peer = up
	relayStateOf(up).peer = c
}

func (h *RelayHandler) dialUpstream(client *Connection) (*Connection, error) {
	if h.poll.atCapacity() {
		return nil, fmt.Errorf("connection limit reached, not dialing %s", h.upstream)
	}

	addr, err := net.ResolveTCPAddr("tcp", h.upstream)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", h.upstream, err)
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("resolve %s: not an IPv4 address", h.upstream)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], ip4)
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("connect %s: %w", h.upstream, err)
	}

	up := NewConnection(fd, h)
	up.SetPeer(h.upstream)
	up.SetLocal(localAddrString(fd))
	up.SetFlag(FlagWaitL4Conn)
	if h.sendProxy {
		up.SetFlag(FlagSendProxy)
		up.SetProxyAddrs(client.Peer(), client.Local())
	}
	up.DataWantRecv()
	up.DataWantSend() // connect completion reported as writability

	h.poll.reg.Attach(fd, up)
	h.poll.incrFd()
	metrics.ConnectionsCurrent.Inc()
	h.poll.wakeup(up)

	log.Logger.Debug("upstream connecting",
		zap.Int("fd", fd), zap.String("upstream", h.upstream))
	return up, nil
}

func (h *RelayHandler) OnReadable(c *Connection) {
	st := relayStateOf(c)
	peer := st.peer
	if peer == nil {
		c.SetError()
		c.SetFlag(FlagNotifyUpper)
		return
	}

	pst := relayStateOf(peer)
	if !drainSocket(c, &pst.out) {
		return
	}
	if pst.out.Len() > 0 {
		peer.DataWantSend()
		h.poll.wakeup(peer)
	}
}

func (h *RelayHandler) OnWritable(c *Connection) {
	flushSocket(c, &relayStateOf(c).out)
}

// OnClose tears down the other leg once one side is gone.
func (h *RelayHandler) OnClose(c *Connection) {
	st := relayStateOf(c)
	peer := st.peer
	if peer == nil {
		return
	}
	st.peer = nil
	relayStateOf(peer).peer = nil
	peer.SetError()
	h.poll.wakeup(peer)
}
