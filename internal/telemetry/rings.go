// Package telemetry implements the viewer's bounded ring buffers for
// per-frame latency and periodic bandwidth snapshots: a 100-sample
// latency ring with median/P95, and a 10-entry bandwidth ring.
package telemetry

import (
	"sort"
	"sync"

	"github.com/n0remac/detectrtc/internal/core"
)

// LatencyRing holds the most recent core.LatencyRingSize round-trip
// latency samples (in milliseconds), oldest evicted first.
type LatencyRing struct {
	mu      sync.Mutex
	samples []int64
	next    int
	full    bool
}

func NewLatencyRing() *LatencyRing {
	return &LatencyRing{samples: make([]int64, core.LatencyRingSize)}
}

func (r *LatencyRing) Add(latencyMillis int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = latencyMillis
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
}

func (r *LatencyRing) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	out := make([]int64, n)
	copy(out, r.samples[:n])
	return out
}

// Median returns the sample median, or 0 if no samples have been added.
func (r *LatencyRing) Median() float64 {
	s := r.snapshot()
	if len(s) == 0 {
		return 0
	}
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return float64(s[mid-1]+s[mid]) / 2
	}
	return float64(s[mid])
}

// P95 returns the 95th percentile sample using floor(0.95*n) indexing
// into the sorted sample set.
func (r *LatencyRing) P95() float64 {
	s := r.snapshot()
	if len(s) == 0 {
		return 0
	}
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	idx := int(0.95 * float64(len(s)))
	if idx >= len(s) {
		idx = len(s) - 1
	}
	return float64(s[idx])
}

func (r *LatencyRing) Len() int {
	return len(r.snapshot())
}

// BandwidthSample is one periodic transport-stats snapshot, sourced
// from PeerConnection.GetStats().
type BandwidthSample struct {
	BytesSent     uint64
	BytesReceived uint64
	TimestampMs   int64
}

// BandwidthRing holds the most recent core.BandwidthRingSize snapshots.
type BandwidthRing struct {
	mu      sync.Mutex
	samples []BandwidthSample
	next    int
	full    bool
}

func NewBandwidthRing() *BandwidthRing {
	return &BandwidthRing{samples: make([]BandwidthSample, core.BandwidthRingSize)}
}

func (r *BandwidthRing) Add(s BandwidthSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
}

func (r *BandwidthRing) Snapshot() []BandwidthSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	out := make([]BandwidthSample, n)
	copy(out, r.samples[:n])
	return out
}

// Latest returns the most recent sample and whether one exists.
func (r *BandwidthRing) Latest() (BandwidthSample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full && r.next == 0 {
		return BandwidthSample{}, false
	}
	idx := r.next - 1
	if idx < 0 {
		idx = len(r.samples) - 1
	}
	return r.samples[idx], true
}
