package core

// ConnFlag is one lifecycle or handshake facet of a connection. Facets are
// independent booleans, not mutually exclusive states.
type ConnFlag uint32

const (
	// Handshake-step facets. Declaration order is priority order: accept-side
	// steps run before initiator-side steps.
	FlagAcceptProxy ConnFlag = 1 << iota // expect a PROXY preamble from the peer
	FlagSendProxy                        // owe a PROXY preamble to the peer

	FlagError       // sticky, never cleared within the connection's lifetime
	FlagConnected   // transport fully established at least once
	FlagWaitL4Conn  // waiting for the TCP connect to complete
	FlagWaitL6Conn  // waiting for a protocol-level connect to complete
	FlagInitSession // session object not finalized yet (embryonic connection)
	FlagPollSock    // handshake socket polling must persist past the pipeline
	FlagNotifyUpper // signal the upper layer once dispatch completes
)

// flagHandshakeMask covers every handshake-step facet; the connection is
// handshaking iff any of them is set.
const flagHandshakeMask = FlagAcceptProxy | FlagSendProxy

// PollState describes multiplexer interest for both directions. Enabled means
// the direction is subscribed; Polled means an explicit edge rearm is required
// rather than a plain enable.
type PollState struct {
	RecvEnabled bool
	RecvPolled  bool
	SendEnabled bool
	SendPolled  bool
}

func (p PollState) union(q PollState) PollState {
	return PollState{
		RecvEnabled: p.RecvEnabled || q.RecvEnabled,
		RecvPolled:  p.RecvPolled || q.RecvPolled,
		SendEnabled: p.SendEnabled || q.SendEnabled,
		SendPolled:  p.SendPolled || q.SendPolled,
	}
}
