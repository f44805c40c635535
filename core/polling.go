package core

// Mux is the narrow surface of the I/O multiplexer driven by the polling
// reconciler. The reconciler only issues calls on state changes; an
// implementation may assume calls are not redundant but must stay correct if
// they are.
type Mux interface {
	WantRecv(fd int)
	StopRecv(fd int)
	PollRecv(fd int) // edge-triggered re-subscribe
	WantSend(fd int)
	StopSend(fd int)
	PollSend(fd int)
}

// reconcilePolling commits the connection's desired polling state to the
// multiplexer, issuing at most one call per direction. The common steady
// state, where nothing changed, makes no call at all. The armed mirror is
// updated verbatim afterwards, whether or not a call was made, so the next
// reconciliation compares against accurate prior state.
func reconcilePolling(mux Mux, c *Connection) {
	prev := c.armed
	next := c.desiredPolling()
	fd := c.fd

	if !(prev.RecvEnabled && prev.RecvPolled) && (next.RecvEnabled && next.RecvPolled) {
		mux.PollRecv(fd)
	} else if !prev.RecvEnabled && next.RecvEnabled {
		mux.WantRecv(fd)
	} else if prev.RecvEnabled && !next.RecvEnabled {
		mux.StopRecv(fd)
	}

	if !(prev.SendEnabled && prev.SendPolled) && (next.SendEnabled && next.SendPolled) {
		mux.PollSend(fd)
	} else if !prev.SendEnabled && next.SendEnabled {
		mux.WantSend(fd)
	} else if prev.SendEnabled && !next.SendEnabled {
		mux.StopSend(fd)
	}

	c.armed = next
}
