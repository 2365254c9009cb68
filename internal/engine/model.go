// Package engine implements object detection: lazy ONNX model load,
// per-room throttling, the deterministic preprocessing pipeline,
// detector invocation, and postprocessing (score filter, box
// normalization, NMS).
package engine

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/sync/singleflight"

	"github.com/n0remac/detectrtc/internal/core"
	"github.com/n0remac/detectrtc/internal/logx"
)

// Config tunes the engine; ScoreThreshold is a field rather than a
// package constant, so callers can set it (cmd/server exposes it as
// -score-threshold; cmd/bench always uses DefaultConfig).
type Config struct {
	ModelPath       string
	ScoreThreshold  float64
	ThrottleMillis  int64
}

func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:      modelPath,
		ScoreThreshold: core.DefaultScoreThresh,
		ThrottleMillis: core.DefaultThrottleInterval,
	}
}

// Model holds the lazily-loaded detector network. It is a field on
// Dispatcher rather than a package-level var, so init/teardown stays
// explicit instead of implicit in module load.
type Model struct {
	mu      sync.RWMutex
	net     *gocv.Net
	loaded  bool
	loadErr error
	group   singleflight.Group
	path    string
	log     logx.Logger
}

func newModel(path string) *Model {
	return &Model{path: path, log: logx.New("engine")}
}

// ensureLoaded loads the ONNX network on first use (or on an explicit
// initialize-server-model request), coalescing concurrent callers onto
// a single load via singleflight so a burst of first frames across
// rooms doesn't re-open the model file N times.
func (m *Model) ensureLoaded() (loadMillis int64, err error) {
	start := time.Now()
	v, err, _ := m.group.Do("load", func() (any, error) {
		m.mu.RLock()
		if m.loaded {
			m.mu.RUnlock()
			return int64(0), nil
		}
		m.mu.RUnlock()

		net := gocv.ReadNetFromONNX(m.path)
		if net.Empty() {
			return int64(0), fmt.Errorf("engine: failed to load model at %q", m.path)
		}
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)

		m.mu.Lock()
		m.net = &net
		m.loaded = true
		m.mu.Unlock()
		return int64(0), nil
	})
	if err != nil {
		m.mu.Lock()
		m.loadErr = err
		m.mu.Unlock()
		m.log.Error("model load failed", err, "path", m.path)
		return 0, err
	}
	_ = v
	return time.Since(start).Milliseconds(), nil
}

func (m *Model) status() (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded, m.path
}

// forward runs the detector on a preprocessed 640x640 RGB blob and
// returns the raw [1,N,6] output tensor as a gocv.Mat the caller must
// Close.
func (m *Model) forward(blob gocv.Mat) (gocv.Mat, error) {
	m.mu.RLock()
	net := m.net
	m.mu.RUnlock()
	if net == nil {
		return gocv.NewMat(), fmt.Errorf("engine: model not loaded")
	}
	net.SetInput(blob, "")
	return net.Forward(""), nil
}

func (m *Model) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.net != nil {
		m.net.Close()
		m.net = nil
		m.loaded = false
	}
}
