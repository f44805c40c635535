//go:build linux
// +build linux

package core

// clientSession finalizes accepted connections. On success the connection
// joins the live-client list and its handler gets a chance to do per-session
// setup. When the error facet is already raised, the embryonic connection is
// destroyed instead and callers must not touch it again.
type clientSession struct {
	poll *Poll
}

func (s *clientSession) Complete(c *Connection) CompleteResult {
	if c.IsErroring() {
		s.poll.destroyConn(c)
		return CompleteDestroyed
	}

	c.ClearFlag(FlagInitSession)
	c.sessNode = s.poll.clients.AddNodeTail(c)
	if h, ok := c.app.(sessionAware); ok {
		h.OnSession(c)
	}
	return CompleteOK
}
