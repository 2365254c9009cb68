package engine

import (
	"sync"
	"time"

	"github.com/n0remac/detectrtc/internal/core"
	"github.com/n0remac/detectrtc/internal/logx"
)

// job is one enqueued frame plus its completion callbacks, carried over
// Dispatcher.queue.
type job struct {
	room     string
	req      core.FrameRequest
	onResult func(core.DetectionResult)
	onError  func(string)
}

// Dispatcher is the single goroutine that owns the detector network and
// serializes all inference calls through it. The broker and engine are
// co-located in one binary, so one owning goroutine avoids needing any
// locking around the gocv.Net handle itself.
type Dispatcher struct {
	cfg   Config
	model *Model
	log   logx.Logger

	queue chan job

	mu       sync.Mutex
	lastRun  map[string]time.Time
}

func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg,
		model:   newModel(cfg.ModelPath),
		log:     logx.New("engine"),
		queue:   make(chan job, 64),
		lastRun: make(map[string]time.Time),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for j := range d.queue {
		d.process(j)
	}
}

// Submit implements signaling.Engine. The per-room throttle is checked
// here, before the job is enqueued — never after — so a burst of frames
// from one room never displaces another room's fair share of the single
// dispatcher's time.
func (d *Dispatcher) Submit(room string, req core.FrameRequest, onResult func(core.DetectionResult), onError func(string)) {
	now := time.Now()
	d.mu.Lock()
	last, seen := d.lastRun[room]
	if seen && now.Sub(last) < time.Duration(d.cfg.ThrottleMillis)*time.Millisecond {
		d.mu.Unlock()
		onError("throttled")
		return
	}
	d.lastRun[room] = now
	d.mu.Unlock()

	select {
	case d.queue <- job{room: room, req: req, onResult: onResult, onError: onError}:
	default:
		onError("engine queue full")
	}
}

func (d *Dispatcher) Status() (loaded bool, modelPath string) {
	return d.model.status()
}

func (d *Dispatcher) Initialize() (loadMillis int64, err error) {
	return d.model.ensureLoaded()
}

func (d *Dispatcher) process(j job) {
	recvTS := time.Now().UnixMilli()

	if _, err := d.model.ensureLoaded(); err != nil {
		j.onError("model unavailable: " + err.Error())
		return
	}

	mat, err := decodeFrame(j.req.ImageData)
	if err != nil {
		j.onError(err.Error())
		return
	}
	defer mat.Close()

	blob := preprocess(mat)
	defer blob.Close()

	out, err := d.model.forward(blob)
	if err != nil {
		j.onError(err.Error())
		return
	}
	defer out.Close()

	dets := postprocess(out, d.cfg.ScoreThreshold)
	inferenceTS := time.Now().UnixMilli()

	j.onResult(core.DetectionResult{
		FrameID:     j.req.FrameID,
		CaptureTS:   j.req.CaptureTS,
		RecvTS:      recvTS,
		InferenceTS: inferenceTS,
		Detections:  dets,
	})
}

// Close shuts down the dispatcher goroutine and releases the detector.
func (d *Dispatcher) Close() {
	close(d.queue)
	d.model.close()
}
