package viewer

import (
	"time"

	"github.com/n0remac/detectrtc/internal/core"
	"github.com/n0remac/detectrtc/internal/logx"
	"github.com/n0remac/detectrtc/internal/telemetry"
)

// Orchestrator ties together the state machine, the latest-only frame
// pipeline, a Dispatcher (local or offload), and telemetry rings. All
// of its methods are meant to be called from a single goroutine —
// typically cmd/viewer's main select loop over data channel messages,
// control messages, and timers.
type Orchestrator struct {
	machine    *Machine
	dispatcher Dispatcher
	pipeline   *Pipeline
	latency    *telemetry.LatencyRing
	bandwidth  *telemetry.BandwidthRing
	log        logx.Logger

	onForward func(core.DetectionResult) // echo back to capture peer
}

func NewOrchestrator(dispatcher Dispatcher, onForward func(core.DetectionResult)) *Orchestrator {
	o := &Orchestrator{
		machine:   NewMachine(),
		latency:   telemetry.NewLatencyRing(),
		bandwidth: telemetry.NewBandwidthRing(),
		log:       logx.New("viewer"),
		onForward: onForward,
	}
	o.pipeline = NewPipeline(o.runDetection)
	o.dispatcher = dispatcher
	return o
}

func (o *Orchestrator) State() State { return o.machine.State() }

func (o *Orchestrator) Apply(ev Event) error {
	return o.machine.Apply(ev)
}

// OnFrame is invoked on every data-channel message carrying a
// core.FrameRequest. Frames are accepted into the pipeline in every
// state: neither frame intake nor result forwarding checks whether the
// machine is in Detecting.
func (o *Orchestrator) OnFrame(req core.FrameRequest) {
	o.pipeline.Submit(req)
}

func (o *Orchestrator) runDetection(req core.FrameRequest) {
	recvTS := time.Now().UnixMilli()
	o.dispatcher.Detect(req, func(res core.DetectionResult) {
		if res.RecvTS == 0 {
			res.RecvTS = recvTS
		}
		if res.InferenceTS == 0 {
			res.InferenceTS = time.Now().UnixMilli()
		}
		o.recordLatency(res)
		if o.onForward != nil {
			o.onForward(res)
		}
		o.pipeline.Done()
	})
}

func (o *Orchestrator) recordLatency(res core.DetectionResult) {
	endToEnd := res.InferenceTS - res.CaptureTS
	if endToEnd < 0 {
		endToEnd = 0
	}
	o.latency.Add(endToEnd)
}

func (o *Orchestrator) LatencyMedian() float64 { return o.latency.Median() }
func (o *Orchestrator) LatencyP95() float64    { return o.latency.P95() }

// RecordBandwidth is called on the orchestrator's 1s stats-sampling
// ticker.
func (o *Orchestrator) RecordBandwidth(s telemetry.BandwidthSample) {
	o.bandwidth.Add(s)
}

func (o *Orchestrator) BandwidthSnapshot() []telemetry.BandwidthSample {
	return o.bandwidth.Snapshot()
}

// PendingDepth exposes the pipeline's current depth, so the "never
// exceeds one pending plus one in-flight" invariant can be asserted
// directly in tests.
func (o *Orchestrator) PendingDepth() int {
	return o.pipeline.Depth()
}

// OnPeerLeft resets to Waiting-for-peer and, if the dispatcher is an
// OffloadClient, abandons any in-flight offload awaits with an empty
// result.
func (o *Orchestrator) OnPeerLeft() error {
	if off, ok := o.dispatcher.(*OffloadClient); ok {
		off.AbandonAll()
	}
	return o.machine.Apply(EventPeerLeft)
}
