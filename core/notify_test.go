package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyQueueDrain(t *testing.T) {
	reg := NewRegistry(4)
	var woken []*Connection
	nq := NewNotifyQueue(reg, func(c *Connection) {
		woken = append(woken, c)
	})

	a := NewConnection(1, &fakeApp{})
	b := NewConnection(2, &fakeApp{})
	reg.Attach(1, a)
	reg.Attach(2, b)

	a.SetFlag(FlagNotifyUpper)
	nq.Notify(a)
	assert.False(t, a.HasFlag(FlagNotifyUpper), "notify consumes the facet")
	nq.Push(b)
	assert.Equal(t, 2, nq.Pending())

	nq.Drain()
	assert.Equal(t, []*Connection{a, b}, woken)
	assert.Zero(t, nq.Pending())
}

// Signals queued for a connection that gets destroyed before the drain are
// skipped instead of resurrecting a stale reference.
func TestNotifyQueueSkipsDestroyed(t *testing.T) {
	reg := NewRegistry(4)
	var woken []*Connection
	nq := NewNotifyQueue(reg, func(c *Connection) {
		woken = append(woken, c)
	})

	a := NewConnection(1, &fakeApp{})
	reg.Attach(1, a)
	nq.Push(a)
	reg.Release(1)

	// the slot may even be reused before the drain runs
	other := NewConnection(1, &fakeApp{})
	reg.Attach(1, other)

	nq.Drain()
	assert.Empty(t, woken)
}
