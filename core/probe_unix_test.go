//go:build linux
// +build linux

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// A connected socket has no pending SO_ERROR: the probe confirms and clears
// the L4 wait facet.
func TestSockProberConfirmsConnectedSocket(t *testing.T) {
	local, _ := socketPair(t)

	c := NewConnection(local, &fakeApp{})
	c.SetFlag(FlagWaitL4Conn)

	assert.Equal(t, ProbeConfirmed, sockProber{}.Probe(c))
	assert.False(t, c.HasFlag(FlagWaitL4Conn))
	assert.False(t, c.IsErroring())
}

// A probe that cannot even query the socket raises the sticky error and the
// upper-layer notify facet instead of confirming.
func TestSockProberErrorsOnBadDescriptor(t *testing.T) {
	c := NewConnection(-1, &fakeApp{})
	c.SetFlag(FlagWaitL4Conn)

	assert.Equal(t, ProbeStillPending, sockProber{}.Probe(c))
	assert.True(t, c.IsErroring())
	assert.True(t, c.HasFlag(FlagNotifyUpper))
	assert.True(t, c.HasFlag(FlagWaitL4Conn))
}
