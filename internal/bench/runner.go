package bench

import (
	"fmt"
	"sort"
	"time"

	"github.com/n0remac/detectrtc/internal/logx"
)

// Sample is one completed frame's timing triple plus whether it
// produced at least one detection, recorded by cmd/bench for each frame
// of a benchmark run.
type Sample struct {
	E2EMs      int64
	ServerMs   int64
	NetworkMs  int64
	Detected   bool
}

// Accumulator collects Samples and periodic bandwidth readings over a
// run and renders them into a Record at the end — or, if Partial is
// called, writes whatever was collected so far to the "_partial" path.
type Accumulator struct {
	mode      string
	started   time.Time
	samples   []Sample
	bytesSent uint64
	bytesRecv uint64
	log       logx.Logger
}

func NewAccumulator(mode string) *Accumulator {
	return &Accumulator{mode: mode, started: time.Now(), log: logx.New("bench")}
}

func (a *Accumulator) Record(s Sample) {
	a.samples = append(a.samples, s)
}

func (a *Accumulator) AddBandwidth(sent, recv uint64) {
	a.bytesSent += sent
	a.bytesRecv += recv
}

// Build renders the accumulated samples into a Record. now is passed in
// rather than computed internally, so the caller chooses the end of the
// run; the start is the time NewAccumulator was called.
func (a *Accumulator) Build(now time.Time) Record {
	var rec Record
	elapsed := now.Sub(a.started).Seconds()

	rec.Benchmark.Timestamp = now.UTC().Format(time.RFC3339)
	rec.Benchmark.Mode = a.mode
	rec.Benchmark.DurationSeconds = elapsed
	rec.Benchmark.TotalFrames = len(a.samples)

	detected := 0
	e2e := make([]float64, 0, len(a.samples))
	server := make([]float64, 0, len(a.samples))
	network := make([]float64, 0, len(a.samples))
	for _, s := range a.samples {
		if s.Detected {
			detected++
		}
		e2e = append(e2e, float64(s.E2EMs))
		server = append(server, float64(s.ServerMs))
		network = append(network, float64(s.NetworkMs))
	}
	rec.Benchmark.FramesWithDetections = detected
	if len(a.samples) > 0 {
		rec.Benchmark.DetectionRatePercent = 100 * float64(detected) / float64(len(a.samples))
	}

	if elapsed > 0 {
		rec.Performance.ProcessedFPS = float64(len(a.samples)) / elapsed
	}
	rec.Performance.E2ELatency = stats(e2e)
	rec.Performance.ServerLatency = stats(server)
	rec.Performance.NetworkLatency = stats(network)

	if elapsed > 0 {
		rec.Bandwidth.UplinkKbps = float64(a.bytesSent) * 8 / 1000 / elapsed
		rec.Bandwidth.DownlinkKbps = float64(a.bytesRecv) * 8 / 1000 / elapsed
	}
	rec.Bandwidth.TotalBytesSent = a.bytesSent
	rec.Bandwidth.TotalBytesReceived = a.bytesRecv

	return rec
}

// Partial writes the record collected so far to PartialPath(outputPath)
// when a run aborts after any samples were collected. A zero-sample
// abort writes nothing.
func (a *Accumulator) Partial(outputPath string, now time.Time) error {
	if len(a.samples) == 0 {
		return nil
	}
	path := PartialPath(outputPath)
	if err := WriteTo(path, a.Build(now)); err != nil {
		return fmt.Errorf("bench: writing partial results: %w", err)
	}
	a.log.Info("wrote partial results", "path", path, "samples", len(a.samples))
	return nil
}

func stats(vals []float64) LatencyStats {
	if len(vals) == 0 {
		return LatencyStats{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	p95Idx := int(0.95 * float64(len(sorted)))
	if p95Idx >= len(sorted) {
		p95Idx = len(sorted) - 1
	}

	return LatencyStats{
		MedianMs:  median,
		P95Ms:     sorted[p95Idx],
		AverageMs: sum / float64(len(sorted)),
		MinMs:     sorted[0],
		MaxMs:     sorted[len(sorted)-1],
	}
}

// ExitCode maps a run outcome to the harness's process exit codes.
func ExitCode(precondition, runtimeErr bool, interrupted, terminated bool) int {
	switch {
	case interrupted:
		return 130
	case terminated:
		return 143
	case precondition, runtimeErr:
		return 1
	default:
		return 0
	}
}
