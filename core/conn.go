package core

import (
	"github.com/fzft/go-edge-proxy/container"
)

// AppHandler is the read/write capability pair invoked by the dispatcher once
// a connection is past its handshake. Callbacks may mutate any facet of the
// connection, including setting the error facet or re-arming a handshake, but
// must not assume the connection stays valid across a nested session
// completion that destroys it.
type AppHandler interface {
	OnReadable(c *Connection)
	OnWritable(c *Connection)
}

// Connection represents one socket-level endpoint in flight. It carries the
// lifecycle facets, two layers of desired polling intent (data layer and
// handshake socket layer) and a mirror of the state last committed to the
// multiplexer. It does not own its descriptor's lifecycle; close and reuse
// are managed by the session layer.
//
// Connection performs no cross-facet validation itself; the dispatcher,
// handshake steps and application callbacks that mutate it are expected to
// keep the documented invariants.
type Connection struct {
	fd    int
	gen   uint32
	flags ConnFlag

	data  PollState // data-layer polling intent
	sock  PollState // handshake-layer polling intent
	armed PollState // last state committed to the multiplexer

	app AppHandler

	peer         string // peer address, possibly rewritten by the accept-proxy step
	local        string
	proxyLine    []byte // prepared outgoing PROXY preamble, built lazily if nil
	sendProxyOfs int    // bytes of the preamble already written

	sessNode *container.ListNode[*Connection] // live-client list membership

	// Ctx is owned by the application layer.
	Ctx any
}

func NewConnection(fd int, app AppHandler) *Connection {
	return &Connection{fd: fd, app: app}
}

func (c *Connection) Fd() int { return c.fd }

func (c *Connection) Flags() ConnFlag { return c.flags }

func (c *Connection) HasFlag(f ConnFlag) bool { return c.flags&f != 0 }

func (c *Connection) SetFlag(f ConnFlag) { c.flags |= f }

// ClearFlag drops the given facets. The error facet is sticky and ignores the
// clear.
func (c *Connection) ClearFlag(f ConnFlag) { c.flags &^= f &^ FlagError }

// SetError raises the sticky error facet. Idempotent.
func (c *Connection) SetError() { c.flags |= FlagError }

// IsHandshaking reports whether any handshake-step facet is pending.
func (c *Connection) IsHandshaking() bool { return c.flags&flagHandshakeMask != 0 }

func (c *Connection) IsErroring() bool { return c.flags&FlagError != 0 }

// WantsRecv reports desired read interest across both intent layers.
func (c *Connection) WantsRecv() bool { return c.data.RecvEnabled || c.sock.RecvEnabled }

// WantsSend reports desired write interest across both intent layers.
func (c *Connection) WantsSend() bool { return c.data.SendEnabled || c.sock.SendEnabled }

// Armed returns the polling state last committed to the multiplexer.
func (c *Connection) Armed() PollState { return c.armed }

// Peer returns the peer address as currently known; an accept-proxy step may
// rewrite it with the address advertised in the preamble.
func (c *Connection) Peer() string { return c.peer }

func (c *Connection) SetPeer(addr string) { c.peer = addr }

func (c *Connection) Local() string { return c.local }

func (c *Connection) SetLocal(addr string) { c.local = addr }

// SetProxyAddrs fixes the addresses announced by the send-proxy step. When a
// connection relays on behalf of another one, the announced source is the
// original peer, not this socket's own address.
func (c *Connection) SetProxyAddrs(src, dst string) { c.proxyLine = buildProxyV1(src, dst) }

// Data-layer intent setters, used by application callbacks.

func (c *Connection) DataWantRecv() { c.data.RecvEnabled = true }

func (c *Connection) DataPollRecv() { c.data.RecvEnabled = true; c.data.RecvPolled = true }

func (c *Connection) DataStopRecv() { c.data.RecvEnabled = false; c.data.RecvPolled = false }

func (c *Connection) DataWantSend() { c.data.SendEnabled = true }

func (c *Connection) DataPollSend() { c.data.SendEnabled = true; c.data.SendPolled = true }

func (c *Connection) DataStopSend() { c.data.SendEnabled = false; c.data.SendPolled = false }

// Handshake socket-layer intent setters, used by handshake steps and the
// connect probe. The dispatcher drops this whole layer once the pipeline has
// drained, unless FlagPollSock asks for it to persist.

func (c *Connection) SockWantRecv() { c.sock.RecvEnabled = true }

func (c *Connection) SockPollRecv() { c.sock.RecvEnabled = true; c.sock.RecvPolled = true }

func (c *Connection) SockStopRecv() { c.sock.RecvEnabled = false; c.sock.RecvPolled = false }

func (c *Connection) SockWantSend() { c.sock.SendEnabled = true }

func (c *Connection) SockPollSend() { c.sock.SendEnabled = true; c.sock.SendPolled = true }

func (c *Connection) SockStopSend() { c.sock.SendEnabled = false; c.sock.SendPolled = false }

func (c *Connection) SockStopBoth() { c.sock = PollState{} }

// desiredPolling is the union of both intent layers, as handed to the
// polling reconciler.
func (c *Connection) desiredPolling() PollState { return c.data.union(c.sock) }
