//go:build linux
// +build linux

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Upstream legs count against the same connection cap as accepted ones; at
// capacity the dial is refused before a socket is even created, and the
// client's session is marked for teardown.
func TestDialUpstreamHonorsConnectionCap(t *testing.T) {
	p := &Poll{maxFD: 1, connCnt: 1, reg: NewRegistry(4)}
	p.notify = NewNotifyQueue(p.reg, p.onWakeup)
	h := NewRelayHandler(p, "127.0.0.1:9", false)

	client := NewConnection(3, &fakeApp{})
	p.reg.Attach(3, client)

	up, err := h.dialUpstream(client)
	assert.Nil(t, up)
	assert.Error(t, err)
	assert.EqualValues(t, 1, p.connCnt, "no leg counted for a refused dial")

	h.OnSession(client)
	assert.True(t, client.IsErroring())
	assert.True(t, client.HasFlag(FlagNotifyUpper))
}
