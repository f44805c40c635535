package core

// EventSet accumulates readiness notifications for a descriptor between
// dispatches.
type EventSet uint8

const (
	EvReadable EventSet = 1 << iota
	EvWritable
	EvHangup
	EvError
)

// slot is one per-descriptor entry: a non-owning back-reference to the
// current connection plus the pending events collected since last dispatch.
// The generation counter bumps on every release so a stale handle kept
// across a close/reuse resolves to nothing instead of dangling.
type slot struct {
	conn *Connection
	gen  uint32
	ev   EventSet
}

// Registry maps raw descriptors to their owning connection. One registry
// belongs to one poll loop; dispatches for its descriptors are serialized by
// that loop, so the registry does no locking of its own.
type Registry struct {
	slots []slot
}

func NewRegistry(size int) *Registry {
	return &Registry{slots: make([]slot, size)}
}

func (r *Registry) grow(fd int) {
	if fd < len(r.slots) {
		return
	}
	grown := make([]slot, fd+1)
	copy(grown, r.slots)
	r.slots = grown
}

// Attach makes the slot for fd reference conn. The previous occupant, if
// any, must already have been released.
func (r *Registry) Attach(fd int, conn *Connection) {
	r.grow(fd)
	s := &r.slots[fd]
	s.conn = conn
	s.ev = 0
	conn.gen = s.gen
}

// Release clears the back-reference and bumps the generation so handles to
// the old occupant go stale. The slot may be reused afterwards.
func (r *Registry) Release(fd int) {
	if fd < 0 || fd >= len(r.slots) {
		return
	}
	s := &r.slots[fd]
	s.conn = nil
	s.ev = 0
	s.gen++
}

// Conn returns the connection owning fd, or nil when the slot is empty.
func (r *Registry) Conn(fd int) *Connection {
	if fd < 0 || fd >= len(r.slots) {
		return nil
	}
	return r.slots[fd].conn
}

func (r *Registry) AddEvents(fd int, ev EventSet) {
	r.grow(fd)
	r.slots[fd].ev |= ev
}

func (r *Registry) Events(fd int) EventSet {
	if fd < 0 || fd >= len(r.slots) {
		return 0
	}
	return r.slots[fd].ev
}

func (r *Registry) ClearEvents(fd int) {
	if fd < 0 || fd >= len(r.slots) {
		return
	}
	r.slots[fd].ev = 0
}

// Handle is a weak reference to a connection's registry slot. It survives
// the connection's destruction but then resolves to nil.
type Handle struct {
	fd  int
	gen uint32
}

func (r *Registry) Handle(c *Connection) Handle {
	return Handle{fd: c.fd, gen: c.gen}
}

// Resolve returns the connection the handle was taken from, or nil if the
// slot has been released or reused since.
func (r *Registry) Resolve(h Handle) *Connection {
	if h.fd < 0 || h.fd >= len(r.slots) {
		return nil
	}
	s := &r.slots[h.fd]
	if s.gen != h.gen {
		return nil
	}
	return s.conn
}
