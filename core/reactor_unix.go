//go:build linux
// +build linux

package core

import (
	"net"
	"os"

	"github.com/fzft/go-edge-proxy/config"
	"github.com/fzft/go-edge-proxy/log"
	"go.uber.org/zap"
)

type Reactor struct {
	ln     net.Listener
	poll   *Poll
	done   chan struct{}
	signal chan os.Signal
}

func NewReactor(ln net.Listener, signal chan os.Signal, cfg *config.Config) (*Reactor, error) {
	r := new(Reactor)
	done := make(chan struct{})

	f, err := ln.(*net.TCPListener).File()
	if err != nil {
		log.Logger.Error("Failed to get listener fd", zap.Error(err))
		return nil, err
	}

	lnFd := int(f.Fd())
	poll, err := NewPoll(done, cfg, lnFd)
	if err != nil {
		return nil, err
	}

	r.poll = poll
	r.ln = ln
	r.done = done
	r.signal = signal

	return r, nil
}

func (r *Reactor) Run() {
	go r.poll.poll()
	defer log.Logger.Info("reactor closed")

	for {
		select {
		case <-r.done:
			return
		case <-r.signal:
			log.Logger.Info("signal received")
			r.poll.sendSignal(SignalStop)
			<-r.done
			return
		}
	}
}

func (r *Reactor) SetHandler(handler AppHandler) {
	r.poll.SetHandler(handler)
}
