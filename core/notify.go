package core

import (
	"github.com/eapache/queue"
)

// NotifyQueue collects upper-layer wake-up signals raised during dispatch and
// replays them later, outside any dispatch, so upper-layer work never runs
// with a dispatch frame on the stack. Signals are weak handles: a connection
// destroyed between the signal and the drain is silently skipped.
type NotifyQueue struct {
	reg *Registry
	q   *queue.Queue
	fn  func(c *Connection)
}

func NewNotifyQueue(reg *Registry, fn func(c *Connection)) *NotifyQueue {
	return &NotifyQueue{reg: reg, q: queue.New(), fn: fn}
}

// Notify implements UpperNotifier. The pending facet is consumed here so the
// signal fires once per arming.
func (n *NotifyQueue) Notify(c *Connection) {
	c.ClearFlag(FlagNotifyUpper)
	n.q.Add(n.reg.Handle(c))
}

// Push queues a signal for a connection outside the current dispatch, e.g.
// the other leg of a relayed pair whose polling intent just changed.
func (n *NotifyQueue) Push(c *Connection) {
	n.q.Add(n.reg.Handle(c))
}

// Drain replays all queued signals. Called by the poll loop after each event
// batch.
func (n *NotifyQueue) Drain() {
	for n.q.Length() > 0 {
		h := n.q.Remove().(Handle)
		if c := n.reg.Resolve(h); c != nil {
			n.fn(c)
		}
	}
}

func (n *NotifyQueue) Pending() int { return n.q.Length() }
