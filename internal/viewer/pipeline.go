package viewer

import (
	"github.com/n0remac/detectrtc/internal/core"
)

// Pipeline implements a replace-with-newest backpressure policy: a
// single pending-frame slot plus an in-flight flag, with queue depth
// never exceeding one pending plus one in-flight. It is not safe for
// concurrent use by design — the orchestrator's single execution
// context is the only caller.
type Pipeline struct {
	pending   *core.FrameRequest
	inFlight  bool
	dispatch  func(core.FrameRequest)
}

// NewPipeline builds a pipeline that calls dispatch exactly once per
// frame actually processed (never for a frame that was overwritten
// while pending).
func NewPipeline(dispatch func(core.FrameRequest)) *Pipeline {
	return &Pipeline{dispatch: dispatch}
}

// Submit is called on every frame arrival: if a dispatch is already in
// flight, the pending slot is overwritten
// (the old contents, if any, are dropped); otherwise the frame is moved
// straight to in-flight and dispatched.
func (p *Pipeline) Submit(req core.FrameRequest) {
	if p.inFlight {
		p.pending = &req
		return
	}
	p.inFlight = true
	p.dispatch(req)
}

// Done is called by the orchestrator once a dispatched frame's result
// (or timeout) has been produced. If a newer frame arrived meanwhile it
// is promoted from pending to in-flight and dispatched immediately;
// otherwise the in-flight flag is cleared.
func (p *Pipeline) Done() {
	if p.pending != nil {
		next := *p.pending
		p.pending = nil
		p.dispatch(next)
		return
	}
	p.inFlight = false
}

// Depth reports the current queue depth (0, 1, or 2): never more than
// one pending plus one in-flight.
func (p *Pipeline) Depth() int {
	d := 0
	if p.inFlight {
		d++
	}
	if p.pending != nil {
		d++
	}
	return d
}
