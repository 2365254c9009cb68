// Package bench holds the benchmark harness's bookkeeping: it
// accumulates per-frame latency samples and bandwidth counters over a
// run and persists the result as a single JSON record. Driving frames
// through the pipeline is done by cmd/bench.
package bench

import (
	"encoding/json"
	"os"
)

// LatencyStats is a per-metric latency summary block.
type LatencyStats struct {
	MedianMs  float64 `json:"median_ms"`
	P95Ms     float64 `json:"p95_ms"`
	AverageMs float64 `json:"average_ms"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
}

// Record is the persisted benchmark document.
type Record struct {
	Benchmark struct {
		Timestamp             string  `json:"timestamp"`
		Mode                  string  `json:"mode"`
		DurationSeconds       float64 `json:"duration_seconds"`
		TotalFrames           int     `json:"total_frames"`
		FramesWithDetections  int     `json:"frames_with_detections"`
		DetectionRatePercent  float64 `json:"detection_rate_percent"`
	} `json:"benchmark"`

	Performance struct {
		ProcessedFPS   float64      `json:"processed_fps"`
		E2ELatency     LatencyStats `json:"e2e_latency"`
		ServerLatency  LatencyStats `json:"server_latency"`
		NetworkLatency LatencyStats `json:"network_latency"`
	} `json:"performance"`

	Bandwidth struct {
		UplinkKbps        float64 `json:"uplink_kbps"`
		DownlinkKbps      float64 `json:"downlink_kbps"`
		TotalBytesSent    uint64  `json:"total_bytes_sent"`
		TotalBytesReceived uint64 `json:"total_bytes_received"`
	} `json:"bandwidth"`
}

// WriteTo persists the record as indented JSON.
func WriteTo(path string, r Record) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// PartialPath rewrites path to carry the "_partial" suffix before its
// extension, e.g. "out.json" -> "out_partial.json".
func PartialPath(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[:i] + "_partial" + path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return path + "_partial"
}
