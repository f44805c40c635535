package core

import (
	"github.com/fzft/go-edge-proxy/metrics"
)

// maxHandshakeSteps bounds step invocations within a single dispatch. The
// handshake loop restarts from the top after every step, so a step that kept
// re-arming its own facet would otherwise live-lock the loop; exceeding the
// budget raises the sticky error facet and unwinds through the normal leave
// path instead.
const maxHandshakeSteps = 256

// Dispatcher drives one connection through its handshake pipeline, the data
// phase callbacks and the polling reconciliation, once per readiness
// notification. It never blocks and never lets a failure escape as a Go
// error: everything propagates through flag inspection after each call.
type Dispatcher struct {
	reg      *Registry
	mux      Mux
	pipeline *Pipeline
	session  SessionHook
	prober   ConnectProber
	notifier UpperNotifier
}

func NewDispatcher(reg *Registry, mux Mux, pipeline *Pipeline, session SessionHook, prober ConnectProber, notifier UpperNotifier) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		mux:      mux,
		pipeline: pipeline,
		session:  session,
		prober:   prober,
		notifier: notifier,
	}
}

// Dispatch handles one readiness notification for fd. A descriptor with no
// owning connection is a no-op.
func (d *Dispatcher) Dispatch(fd int) {
	conn := d.reg.Conn(fd)
	if conn == nil {
		return
	}
	metrics.DispatchesTotal.Inc()

	if !d.process(conn, fd) {
		// The connection was destroyed mid-dispatch; nothing may be touched
		// anymore, not even to clear events or reconcile polling.
		return
	}
	d.leave(conn, fd)
}

// process runs the handshake and data phases. It returns false when the
// connection has been destroyed and must not be accessed again.
func (d *Dispatcher) process(conn *Connection, fd int) bool {
	steps := 0
	for {
		// Handshake steps run in priority order, one per iteration, and the
		// loop re-evaluates every pending facet after each step. A step that
		// cannot complete must have armed the socket polling it waits on
		// before blocking; polling state is not guaranteed when it is
		// entered.
		for conn.IsHandshaking() {
			if conn.IsErroring() {
				return true
			}
			if steps++; steps > maxHandshakeSteps {
				metrics.HandshakeOverruns.Inc()
				conn.SetError()
				return true
			}
			if d.pipeline.runNext(conn) == StepBlocked {
				return true
			}
		}

		// Purely in the data phase now: drop the handshake-only socket
		// polling unless a step asked for it to persist.
		if !conn.HasFlag(FlagPollSock) {
			conn.SockStopBoth()
		}

		// Maybe an incoming session still needs finishing. The hook may fail
		// and destroy the connection, in which case we leave immediately.
		if conn.HasFlag(FlagInitSession) && d.session.Complete(conn) == CompleteDestroyed {
			return false
		}

		ev := d.reg.Events(fd)
		if ev&(EvReadable|EvHangup|EvError) != 0 {
			conn.app.OnReadable(conn)
		}
		if conn.IsErroring() {
			return true
		}
		// A data-phase callback may arm a handshake again (eg. a
		// renegotiation); resume the pipeline before anything else.
		if conn.IsHandshaking() {
			continue
		}

		if ev&(EvWritable|EvError) != 0 {
			conn.app.OnWritable(conn)
		}
		if conn.IsErroring() {
			return true
		}
		if conn.IsHandshaking() {
			continue
		}

		// Still waiting for the connect to complete, and no send proved the
		// peer accepted: retry the non-blocking probe, once.
		if conn.HasFlag(FlagWaitL4Conn) {
			d.prober.Probe(conn)
		}
		return true
	}
}

// leave finishes the dispatch: embryonic error teardown, upper-layer
// notification, first-establishment marking, event consumption and polling
// reconciliation.
func (d *Dispatcher) leave(conn *Connection, fd int) {
	// An embryonic session that errored is released synchronously; the hook
	// owns the teardown and the connection must not be touched afterwards.
	if conn.HasFlag(FlagError) && conn.HasFlag(FlagInitSession) {
		conn.SetError()
		d.session.Complete(conn)
		return
	}

	if conn.HasFlag(FlagNotifyUpper) {
		d.notifier.Notify(conn)
	}

	// Last check: nothing pending on any layer means the connection just
	// established for the first time. A blocked handshake counts as pending.
	if conn.flags&(FlagWaitL4Conn|FlagWaitL6Conn|FlagConnected) == 0 && !conn.IsHandshaking() {
		conn.SetFlag(FlagConnected)
	}

	d.reg.ClearEvents(fd)
	reconcilePolling(d.mux, conn)
}
