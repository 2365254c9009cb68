package viewer

import (
	"sync"
	"time"

	"github.com/n0remac/detectrtc/internal/core"
)

// Dispatcher runs inference for one frame and reports the result (or a
// synthesized empty result on timeout/failure) via done. Local and
// offload modes share this shape so the orchestrator doesn't care which
// is wired in.
type Dispatcher interface {
	Detect(req core.FrameRequest, done func(core.DetectionResult))
}

// LocalDetector runs inference in-process via an embedded detector.
// Server latency and network latency are both defined as 0 in local
// mode.
type LocalDetector struct {
	Detect0 func(req core.FrameRequest) core.DetectionResult
}

func (l LocalDetector) Detect(req core.FrameRequest, done func(core.DetectionResult)) {
	done(l.Detect0(req))
}

// SignalSender is the subset of the viewer's signaling connection the
// offload client needs to push a process-frame request.
type SignalSender interface {
	SendProcessFrame(req core.FrameRequest)
}

// OffloadClient forwards frames to the inference engine over the
// signaling control connection and correlates the asynchronous
// detection-result/processing-error reply by frame_id, with an explicit
// 200ms timeout: on fire, the pending correlation is abandoned and a
// late reply is discarded.
type OffloadClient struct {
	send SignalSender

	mu      sync.Mutex
	pending map[string]func(core.DetectionResult)
}

func NewOffloadClient(send SignalSender) *OffloadClient {
	return &OffloadClient{send: send, pending: make(map[string]func(core.DetectionResult))}
}

func (o *OffloadClient) Detect(req core.FrameRequest, done func(core.DetectionResult)) {
	o.mu.Lock()
	o.pending[req.FrameID] = done
	o.mu.Unlock()

	o.send.SendProcessFrame(req)

	go func() {
		time.Sleep(time.Duration(core.OffloadTimeoutMillis) * time.Millisecond)
		o.mu.Lock()
		cb, ok := o.pending[req.FrameID]
		if ok {
			delete(o.pending, req.FrameID)
		}
		o.mu.Unlock()
		if ok {
			cb(core.DetectionResult{FrameID: req.FrameID, CaptureTS: req.CaptureTS})
		}
	}()
}

// OnResult is called from cmd/viewer's event loop when a detection-result (or
// processing-error, via OnError) arrives from the broker. A reply whose
// frame_id has no pending correlation — because the timeout already
// fired — is discarded.
func (o *OffloadClient) OnResult(res core.DetectionResult) {
	o.mu.Lock()
	cb, ok := o.pending[res.FrameID]
	if ok {
		delete(o.pending, res.FrameID)
	}
	o.mu.Unlock()
	if ok {
		cb(res)
	}
}

func (o *OffloadClient) OnError(frameID string) {
	o.mu.Lock()
	cb, ok := o.pending[frameID]
	if ok {
		delete(o.pending, frameID)
	}
	o.mu.Unlock()
	if ok {
		cb(core.DetectionResult{FrameID: frameID})
	}
}

// AbandonAll discards every pending correlation with an empty result.
// Called on peer-left, which terminates any in-flight offload awaits
// immediately.
func (o *OffloadClient) AbandonAll() {
	o.mu.Lock()
	pending := o.pending
	o.pending = make(map[string]func(core.DetectionResult))
	o.mu.Unlock()
	for frameID, cb := range pending {
		cb(core.DetectionResult{FrameID: frameID})
	}
}
