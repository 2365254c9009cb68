// cmd/bench is the benchmark harness CLI: it drives a synthetic frame
// source through the in-process inference engine for a fixed duration
// and persists the resulting record. Only -mode=local runs a benchmark;
// -mode=offload is accepted but exits with status 1 without running.
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/n0remac/detectrtc/internal/bench"
	"github.com/n0remac/detectrtc/internal/core"
	"github.com/n0remac/detectrtc/internal/engine"
)

func main() {
	duration := flag.Float64("duration", 30, "benchmark duration in seconds (>= 5)")
	mode := flag.String("mode", "local", "inference dispatch mode: local or offload")
	output := flag.String("output", "bench-result.json", "path to write the JSON result record")
	modelPath := flag.String("model", os.Getenv("DETECTRTC_MODEL_PATH"), "ONNX model path")
	signalURL := flag.String("signal", "ws://localhost:8080/ws/signal", "broker URL, used only in -mode=offload")
	flag.Parse()

	if *duration < 5 {
		log.Println("[bench] -duration must be >= 5 seconds")
		os.Exit(1)
	}
	if *mode != "local" && *mode != "offload" {
		log.Printf("[bench] unknown -mode %q", *mode)
		os.Exit(1)
	}
	if *mode == "offload" && *signalURL == "" {
		log.Println("[bench] -signal is required in -mode=offload")
		os.Exit(1)
	}
	if *modelPath == "" && *mode == "local" {
		log.Println("[bench] -model is required in -mode=local")
		os.Exit(1)
	}

	acc := bench.NewAccumulator(*mode)
	frame, err := syntheticFrame()
	if err != nil {
		log.Printf("[bench] precondition failure: %v", err)
		os.Exit(bench.ExitCode(true, false, false, false))
	}

	var detect func(core.FrameRequest) core.DetectionResult
	switch *mode {
	case "local":
		d := engine.NewDispatcher(engine.DefaultConfig(*modelPath))
		defer d.Close()
		detect = func(req core.FrameRequest) core.DetectionResult {
			result := make(chan core.DetectionResult, 1)
			d.Submit("bench", req,
				func(res core.DetectionResult) { result <- res },
				func(string) { result <- core.DetectionResult{FrameID: req.FrameID} },
			)
			return <-result
		}
	case "offload":
		// Unwired: driving a real offload run means standing up a
		// signalclient+webrtcpeer round trip against a running
		// cmd/server, which cmd/viewer already does. -mode=offload is
		// accepted as a CLI value but only -mode=local is a working
		// benchmark path today.
		log.Printf("[bench] offload benchmarking requires a running cmd/server at %s; see cmd/viewer for the full offload client wiring", *signalURL)
		os.Exit(bench.ExitCode(true, false, false, false))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	deadline := time.Now().Add(time.Duration(*duration * float64(time.Second)))
	ticker := time.NewTicker(100 * time.Millisecond) // matches the engine's minimum per-room interval
	defer ticker.Stop()

	frameNum := 0
	for time.Now().Before(deadline) {
		select {
		case sig := <-sigCh:
			interrupted := sig == os.Interrupt
			if err := acc.Partial(*output, time.Now()); err != nil {
				log.Printf("[bench] %v", err)
			}
			os.Exit(bench.ExitCode(false, false, interrupted, !interrupted))
		case <-ticker.C:
			frameNum++
			captureTS := time.Now().UnixMilli()
			req := core.FrameRequest{
				Room:      "bench",
				FrameID:   fmt.Sprintf("bench-%d", frameNum),
				CaptureTS: captureTS,
				Width:     core.DetectorInputSize,
				Height:    core.DetectorInputSize,
				ImageData: frame,
			}
			recvTS := time.Now().UnixMilli()
			res := detect(req)
			inferenceTS := time.Now().UnixMilli()

			acc.Record(bench.Sample{
				E2EMs:     inferenceTS - captureTS,
				ServerMs:  inferenceTS - recvTS,
				NetworkMs: recvTS - captureTS,
				Detected:  len(res.Detections) > 0,
			})
		}
	}

	if err := bench.WriteTo(*output, acc.Build(time.Now())); err != nil {
		log.Printf("[bench] writing result: %v", err)
		os.Exit(bench.ExitCode(false, true, false, false))
	}
	log.Printf("[bench] wrote %s", *output)
}

// syntheticFrame renders one flat-color 640x640 JPEG and wraps it as a
// data URI, standing in for the capture peer's camera feed so the
// benchmark harness has frames to push through the pipeline.
func syntheticFrame() (string, error) {
	mat := gocv.NewMatWithSize(core.DetectorInputSize, core.DetectorInputSize, gocv.MatTypeCV8UC3)
	defer mat.Close()
	mat.SetTo(gocv.NewScalar(128, 128, 128, 0))

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return "", fmt.Errorf("bench: encode synthetic frame: %w", err)
	}
	defer buf.Close()
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}
