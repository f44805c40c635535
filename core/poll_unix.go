//go:build linux
// +build linux

package core

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/fzft/go-edge-proxy/config"
	"github.com/fzft/go-edge-proxy/container"
	"github.com/fzft/go-edge-proxy/log"
	"github.com/fzft/go-edge-proxy/metrics"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// https://copyconstruct.medium.com/the-method-to-epolls-madness-d9d2d6378642

type pipeSignal uint64

const (
	SignalStop pipeSignal = 1
)

// Poll owns one epoll instance, the fd registry shard attached to it and the
// dispatcher driving its connections. Dispatches for a descriptor are
// serialized by this loop; nothing here takes locks.
type Poll struct {
	epollFd  int
	listenFD int
	efd      int
	maxFD    int64
	connCnt  int64
	done     chan struct{}

	cfg     *config.Config
	mux     *epollMux
	reg     *Registry
	disp    *Dispatcher
	notify  *NotifyQueue
	clients *container.List[*Connection]
	handler AppHandler
}

func NewPoll(done chan struct{}, cfg *config.Config, lnFd int) (*Poll, error) {
	// Create a new epoll instance
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		log.Logger.Error("Failed to create epoll", zap.Error(err))
		return nil, err
	}

	mux := newEpollMux(epfd)

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		log.Logger.Error("Failed to create eventfd", zap.Error(err))
		return nil, err
	}

	// Register the eventfd to epoll for read events
	if err := mux.AddRead(efd); err != nil {
		log.Logger.Error("Failed to add eventfd to epoll", zap.Error(err))
		return nil, err
	}

	// Register the listener to epoll for read events
	if err := mux.AddRead(lnFd); err != nil {
		log.Logger.Error("Failed to add listener to epoll", zap.Error(err))
		return nil, err
	}

	p := &Poll{
		epollFd:  epfd,
		listenFD: lnFd,
		efd:      efd,
		maxFD:    cfg.MaxConnections,
		done:     done,
		cfg:      cfg,
		mux:      mux,
		clients:  container.NewList[*Connection](),
	}
	p.reg = NewRegistry(int(cfg.MaxConnections))
	p.notify = NewNotifyQueue(p.reg, p.onWakeup)

	if cfg.UpstreamAddr != "" {
		p.handler = NewRelayHandler(p, cfg.UpstreamAddr, cfg.SendProxy)
	} else {
		p.handler = EchoHandler{}
	}

	pipeline := NewPipeline()
	pipeline.Register(FlagAcceptProxy, recvProxyStep)
	pipeline.Register(FlagSendProxy, sendProxyStep)

	p.disp = NewDispatcher(p.reg, mux, pipeline, &clientSession{poll: p}, sockProber{}, p.notify)

	return p, nil
}

func (p *Poll) SetHandler(handler AppHandler) {
	p.handler = handler
}

// CloseGracefully order: eventfd, listener, connections, epoll
// prevent the fd leak
func (p *Poll) CloseGracefully() error {

	// close the eventfd fd
	if err := p.mux.Forget(p.efd); err != nil {
		log.Logger.Debug("Failed to delete eventfd from epoll", zap.Error(err))
	}
	if err := CloseFd(p.efd); err != nil {
		log.Logger.Debug("Failed to close eventfd", zap.Error(err))
	}

	// close the listener fd
	if err := p.mux.Forget(p.listenFD); err != nil {
		log.Logger.Debug("Failed to delete listener from epoll", zap.Error(err))
	}
	if err := CloseFd(p.listenFD); err != nil {
		log.Logger.Debug("Failed to close listener", zap.Error(err))
	}

	// close all remaining connections
	if err := p.mux.CloseAll(); err != nil {
		log.Logger.Debug("Failed to close connections", zap.Error(err))
	}
	p.clients.Empty()

	// close the epoll fd
	if err := CloseFd(p.epollFd); err != nil {
		log.Logger.Info("Failed to close epoll", zap.Error(err))
	}

	return nil
}

func (p *Poll) poll() {
	events := make([]unix.EpollEvent, p.maxFD)
	msec := -1

	defer close(p.done)

	// handle cleanup if necessary
	defer p.CloseGracefully()

	for {
		// EpollWait blocks until there is an event to report
		// n: number of events returned
		// if n == 0, it means that the call timed out and no events were available
		// if n < 0, it means that an error occurred
		// level triggered, poll mode
		n, err := unix.EpollWait(p.epollFd, events, msec)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			continue
		} else if err != nil {
			log.Logger.Error("epoll wait error", zap.Error(err))
			return
		}

		for i := 0; i < n; i++ {
			ev := &events[i]
			err := p.processEvent(int(ev.Fd), ev)
			switch err {
			case nil:
			case ErrSignalStopped:
				return
			default:
				log.Logger.Error("Failed to process event", zap.Error(err))
				return
			}
		}

		// deferred work raised during dispatch: upper-layer signals,
		// cross-connection polling changes, teardowns
		p.notify.Drain()
	}
}

func (p *Poll) processEvent(fd int, ev *unix.EpollEvent) error {
	if fd == p.efd {
		// if the fd is the read end of the eventfd, it means that there is a signal to handle
		return p.handleSignal(fd)
	}
	if fd == p.listenFD {
		// if the fd is the listener, it means that there is a new connection
		return p.accept(fd)
	}

	// accumulate the readiness bits for the dispatcher; it consumes them
	// exactly once per dispatch
	var set EventSet
	if ev.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		set |= EvReadable
	}
	if ev.Events&unix.EPOLLOUT != 0 {
		set |= EvWritable
	}
	if ev.Events&unix.EPOLLHUP != 0 {
		set |= EvHangup
	}
	if ev.Events&unix.EPOLLERR != 0 {
		set |= EvError
	}
	p.reg.AddEvents(fd, set)

	p.disp.Dispatch(fd)
	return nil
}

// handleSignal handles the signal from the signal pipe
func (p *Poll) handleSignal(fd int) error {
	var buf uint64
	_, err := unix.Read(fd, (*(*[8]byte)(unsafe.Pointer(&buf)))[:])
	if err != nil {
		log.Logger.Error("Failed to read from event fd", zap.Error(err))
		return nil
	}
	receivedSignal := pipeSignal(buf)
	switch receivedSignal {
	case SignalStop:
		return ErrSignalStopped
	}
	return nil
}

// sendSignal sends a signal to the event fd
func (p *Poll) sendSignal(sig pipeSignal) error {
	_, err := unix.Write(p.efd, (*(*[8]byte)(unsafe.Pointer(&sig)))[:])
	if err != nil {
		log.Logger.Error("Failed to write to event fd", zap.Error(err))
	}
	return err
}

// accept a new connection
func (p *Poll) accept(fd int) error {
	connFd, sa, err := unix.Accept(fd)
	if err != nil {
		// Handle the case where there are no more connections to accept.
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil // This isn't necessarily an error, just no more connections to accept right now.
		}
		log.Logger.Error("accept error", zap.Error(err))
		return fmt.Errorf("accept error: %w", err)
	}

	if p.atCapacity() {
		log.Logger.Warn("connection limit reached, dropping", zap.Int("fd", connFd))
		unix.Close(connFd)
		return nil
	}

	// set the socket to non-blocking mode
	if err := unix.SetNonblock(connFd, true); err != nil {
		log.Logger.Error("set nonblock error", zap.Error(err))
		return fmt.Errorf("set nonblock error for fd %d: %w", connFd, err)
	}

	// embryonic connection: the session completes on its first dispatch
	conn := NewConnection(connFd, p.handler)
	conn.SetPeer(sockaddrString(sa))
	conn.SetLocal(localAddrString(connFd))
	conn.SetFlag(FlagInitSession)
	if p.cfg.AcceptProxy {
		conn.SetFlag(FlagAcceptProxy)
	}
	conn.DataWantRecv()

	p.reg.Attach(connFd, conn)
	reconcilePolling(p.mux, conn)

	// increase the number of fds
	p.incrFd()
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsCurrent.Inc()

	log.Logger.Debug("new connection", zap.Int("fd", connFd), zap.String("peer", conn.Peer()))

	return nil
}

// wakeup defers a reconcile-or-teardown for a connection outside the current
// dispatch.
func (p *Poll) wakeup(c *Connection) {
	p.notify.Push(c)
}

// onWakeup runs queued connection work between event batches.
func (p *Poll) onWakeup(c *Connection) {
	if c.IsErroring() {
		p.destroyConn(c)
		return
	}
	reconcilePolling(p.mux, c)
}

// destroyConn releases everything attached to a connection: registry slot,
// epoll interest, descriptor, live-client membership. Any handle taken
// before this point goes stale rather than dangling.
func (p *Poll) destroyConn(c *Connection) {
	fd := c.Fd()
	embryonic := c.HasFlag(FlagInitSession)

	p.reg.Release(fd)
	if err := p.mux.Forget(fd); err != nil {
		log.Logger.Debug("Failed to delete conn from epoll", zap.Int("fd", fd), zap.Error(err))
	}
	if err := CloseFd(fd); err != nil {
		log.Logger.Debug("Failed to close conn", zap.Int("fd", fd), zap.Error(err))
	}
	if c.sessNode != nil {
		p.clients.RemoveNode(c.sessNode)
		c.sessNode = nil
	}

	p.decrFd()
	metrics.ConnectionsCurrent.Dec()
	if embryonic {
		metrics.EmbryonicDestroyed.Inc()
	}

	if h, ok := c.app.(closeAware); ok {
		h.OnClose(c)
	}

	log.Logger.Debug("connection destroyed", zap.Int("fd", fd))
}

// atCapacity reports whether the connection cap is exhausted. Upstream legs
// count against the same cap as accepted ones.
func (p *Poll) atCapacity() bool {
	return atomic.LoadInt64(&p.connCnt) >= p.maxFD
}

func (p *Poll) incrFd() {
	atomic.AddInt64(&p.connCnt, 1)
}

func (p *Poll) decrFd() {
	atomic.AddInt64(&p.connCnt, -1)
}
