package core

import (
	"github.com/fzft/go-edge-proxy/log"
	"go.uber.org/zap"
)

// StepResult is the outcome of one handshake step invocation.
type StepResult int

const (
	// StepAdvance means the step made progress; it normally clears its own
	// facet, possibly others.
	StepAdvance StepResult = iota

	// StepBlocked means the step cannot complete on this wake-up. Before
	// returning it the step must either have armed the socket-layer polling
	// it is waiting on, or have set the error facet.
	StepBlocked
)

// HandshakeStep advances or blocks one named phase of connection setup.
// Steps are idempotent: the loop may invoke the same step again on a later
// wake-up, or again within the same dispatch after an unrelated facet
// changed.
type HandshakeStep func(c *Connection) StepResult

type pipelineEntry struct {
	flag ConnFlag
	step HandshakeStep
}

// Pipeline holds the handshake steps in their fixed priority order.
// Registration order is significant: accept-side steps must be registered
// before initiator-side steps.
type Pipeline struct {
	entries []pipelineEntry
}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) Register(flag ConnFlag, step HandshakeStep) {
	p.entries = append(p.entries, pipelineEntry{flag: flag, step: step})
}

// runNext invokes the highest-priority pending step. The caller re-checks
// every pending facet from the top after each invocation, so clearing the
// last facet exits the handshake loop naturally.
func (p *Pipeline) runNext(c *Connection) StepResult {
	for _, e := range p.entries {
		if c.HasFlag(e.flag) {
			return e.step(c)
		}
	}

	// A pending facet with no registered provider cannot make progress.
	log.Logger.Error("no handshake step registered for pending facet",
		zap.Int("fd", c.Fd()), zap.Uint32("flags", uint32(c.Flags())))
	c.SetError()
	return StepBlocked
}
