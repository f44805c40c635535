package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcileEnableDisable(t *testing.T) {
	mux := &fakeMux{}
	c := NewConnection(5, &fakeApp{})

	c.DataWantRecv()
	reconcilePolling(mux, c)
	assert.Equal(t, []string{"want_recv:5"}, mux.calls)
	assert.Equal(t, PollState{RecvEnabled: true}, c.Armed())

	mux.reset()
	c.DataStopRecv()
	c.DataWantSend()
	reconcilePolling(mux, c)
	assert.Equal(t, []string{"stop_recv:5", "want_send:5"}, mux.calls)
	assert.Equal(t, PollState{SendEnabled: true}, c.Armed())
}

// Reconciling twice with unchanged desired state issues no multiplexer call
// on the second invocation.
func TestReconcileIdempotent(t *testing.T) {
	mux := &fakeMux{}
	c := NewConnection(5, &fakeApp{})

	c.DataWantRecv()
	c.DataWantSend()
	reconcilePolling(mux, c)
	assert.Len(t, mux.calls, 2)

	mux.reset()
	reconcilePolling(mux, c)
	assert.Empty(t, mux.calls, "steady state must not touch the multiplexer")
}

// A transition into enabled+polled issues an edge rearm, not a plain enable,
// even when the direction was already enabled.
func TestReconcileEdgeRearm(t *testing.T) {
	mux := &fakeMux{}
	c := NewConnection(5, &fakeApp{})

	c.DataWantRecv()
	reconcilePolling(mux, c)
	mux.reset()

	c.DataPollRecv()
	reconcilePolling(mux, c)
	assert.Equal(t, []string{"poll_recv:5"}, mux.calls)

	// reconciling again is a no-op: the armed state already carries both
	// bits, so this is not a rearm transition anymore
	mux.reset()
	reconcilePolling(mux, c)
	assert.Empty(t, mux.calls)
}

// The armed mirror is committed verbatim even when no call was issued.
func TestReconcileCommitsArmedState(t *testing.T) {
	mux := &fakeMux{}
	c := NewConnection(5, &fakeApp{})

	c.DataWantRecv()
	c.SockWantRecv() // union does not double-report
	reconcilePolling(mux, c)
	assert.Equal(t, []string{"want_recv:5"}, mux.calls)

	mux.reset()
	c.DataStopRecv() // sock layer still wants recv: no transition
	reconcilePolling(mux, c)
	assert.Empty(t, mux.calls)
	assert.Equal(t, PollState{RecvEnabled: true}, c.Armed())

	c.SockStopBoth()
	reconcilePolling(mux, c)
	assert.Equal(t, []string{"stop_recv:5"}, mux.calls)
	assert.Equal(t, PollState{}, c.Armed())
}

func TestDesiredPollingUnion(t *testing.T) {
	c := NewConnection(1, &fakeApp{})

	c.DataWantRecv()
	c.SockPollSend()
	assert.True(t, c.WantsRecv())
	assert.True(t, c.WantsSend())
	assert.Equal(t, PollState{RecvEnabled: true, SendEnabled: true, SendPolled: true}, c.desiredPolling())

	c.SockStopBoth()
	assert.False(t, c.WantsSend())
	assert.True(t, c.WantsRecv())
}
