package core

// sessionAware handlers are told when their connection's session completes,
// which is where per-connection setup like dialing an upstream belongs.
type sessionAware interface {
	OnSession(c *Connection)
}

// closeAware handlers are told after their connection has been destroyed so
// they can release whatever they attached to it. The connection's descriptor
// and registry slot are already gone at that point.
type closeAware interface {
	OnClose(c *Connection)
}
