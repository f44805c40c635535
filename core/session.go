package core

// CompleteResult is the outcome of a session completion attempt.
type CompleteResult int

const (
	// CompleteOK means the session is finalized and the connection stays
	// valid.
	CompleteOK CompleteResult = iota

	// CompleteDestroyed means the connection has been torn down: descriptor
	// closed, registry slot released. Callers must not touch the connection
	// afterwards.
	CompleteDestroyed
)

// SessionHook finalizes or aborts an embryonic connection. It is invoked by
// the dispatcher exactly when FlagInitSession is set: once on the normal path
// to finish initializing the session, and once on the leave path when the
// error facet forces a synchronous teardown.
type SessionHook interface {
	Complete(c *Connection) CompleteResult
}

// ConnectProber checks whether a non-blocking connect has completed. It is
// invoked only while FlagWaitL4Conn is set and nothing was sent this dispatch
// (a successful send is itself evidence the peer accepted, and clears the
// facet in the send callback). It must not block; a probe that cannot
// confirm leaves polling interest armed and returns ProbeStillPending.
type ConnectProber interface {
	Probe(c *Connection) ProbeResult
}

type ProbeResult int

const (
	ProbeConfirmed ProbeResult = iota
	ProbeStillPending
)

// UpperNotifier receives the FlagNotifyUpper signal raised during dispatch.
type UpperNotifier interface {
	Notify(c *Connection)
}
