// cmd/viewer is the viewer-side orchestrator process: it joins a room,
// offers the peer-to-peer connection once the capture peer arrives,
// receives frame requests over the data channel, runs inference
// locally or offloaded, and echoes results back to capture.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/n0remac/detectrtc/internal/core"
	"github.com/n0remac/detectrtc/internal/engine"
	"github.com/n0remac/detectrtc/internal/signalclient"
	"github.com/n0remac/detectrtc/internal/telemetry"
	"github.com/n0remac/detectrtc/internal/viewer"
	"github.com/n0remac/detectrtc/internal/webrtcpeer"
)

func main() {
	signalURL := flag.String("signal", "ws://localhost:8080/ws/signal", "broker websocket URL")
	room := flag.String("room", "default", "room id to join")
	mode := flag.String("mode", "offload", "inference dispatch mode: local or offload")
	modelPath := flag.String("model", os.Getenv("DETECTRTC_MODEL_PATH"), "ONNX model path, required in -mode=local")
	flag.Parse()

	sc, err := signalclient.Dial(*signalURL, *room, core.RoleViewer)
	if err != nil {
		log.Fatalf("[viewer] dial: %v", err)
	}
	defer sc.Close()

	peer, err := webrtcpeer.New(false /* impolite: viewer always offers */, sc)
	if err != nil {
		log.Fatalf("[viewer] new peer: %v", err)
	}
	defer peer.Close()

	// events is the single execution context the orchestrator and
	// pipeline require: pion's data channel goroutine, signalclient's
	// read loop, and the offload client's internal timeout goroutine
	// each post a closure here instead of calling into orch directly,
	// and the select loop below is the only goroutine that ever runs
	// them.
	events := make(chan func(), 64)
	post := func(fn func()) { events <- fn }

	var dispatcher viewer.Dispatcher
	var offload *viewer.OffloadClient
	switch *mode {
	case "local":
		if *modelPath == "" {
			log.Fatal("[viewer] -model is required in -mode=local")
		}
		d := engine.NewDispatcher(engine.DefaultConfig(*modelPath))
		defer d.Close()
		local := viewer.LocalDetector{Detect0: func(req core.FrameRequest) core.DetectionResult {
			result := make(chan core.DetectionResult, 1)
			d.Submit(*room, req,
				func(res core.DetectionResult) { result <- res },
				func(msg string) { result <- core.DetectionResult{FrameID: req.FrameID} },
			)
			return <-result
		}}
		dispatcher = serializingDispatcher{inner: local, post: post}
	case "offload":
		offload = viewer.NewOffloadClient(sc)
		sc.OnDetectionResult(func(res core.DetectionResult) {
			post(func() { offload.OnResult(res) })
		})
		sc.OnProcessingError(func(msg string) {
			post(func() { offload.OnError(msg) })
		})
		dispatcher = serializingDispatcher{inner: offload, post: post}
	default:
		log.Fatalf("[viewer] unknown -mode %q (want local or offload)", *mode)
	}

	orch := viewer.NewOrchestrator(dispatcher, func(res core.DetectionResult) {
		b, err := json.Marshal(res)
		if err != nil {
			log.Printf("[viewer] marshal detection result: %v", err)
			return
		}
		if err := peer.Send(b); err != nil {
			log.Printf("[viewer] echo detection result: %v", err)
		}
	})

	if err := orch.Apply(viewer.EventControlOpen); err != nil {
		log.Fatalf("[viewer] %v", err)
	}
	if err := orch.Apply(viewer.EventJoinAcked); err != nil {
		log.Fatalf("[viewer] %v", err)
	}

	sc.OnPeerJoined(func(peerID, peerType string) {
		if peerType != core.WireTypePhone {
			return
		}
		post(func() {
			if err := orch.Apply(viewer.EventPeerJoined); err != nil {
				log.Printf("[viewer] %v", err)
				return
			}
			if err := peer.Offer(); err != nil {
				log.Printf("[viewer] offer: %v", err)
				return
			}
			orch.Apply(viewer.EventOfferSent)
		})
	})
	sc.OnPeerLeft(func(peerID, peerType string) {
		if peerType != core.WireTypePhone {
			return
		}
		post(func() {
			// orch.OnPeerLeft only sees the serializingDispatcher wrapper,
			// so the offload client's pending awaits are abandoned here.
			if offload != nil {
				offload.AbandonAll()
			}
			if err := orch.OnPeerLeft(); err != nil {
				log.Printf("[viewer] %v", err)
			}
		})
	})
	sc.OnAnswer(func(sdp webrtc.SessionDescription) {
		post(func() {
			if err := peer.HandleAnswer(sdp); err != nil {
				log.Printf("[viewer] handle answer: %v", err)
				return
			}
			orch.Apply(viewer.EventAnswerReceived)
			orch.Apply(viewer.EventTransportEstablished)
			orch.Apply(viewer.EventDetectToggleOn)
		})
	})
	sc.OnCandidate(func(c webrtc.ICECandidateInit) {
		if err := peer.HandleCandidate(c); err != nil {
			log.Printf("[viewer] handle candidate: %v", err)
		}
	})

	peer.OnMessage = func(data []byte) {
		var req core.FrameRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("[viewer] undecodable frame request: %v", err)
			return
		}
		post(func() { orch.OnFrame(req) })
	}

	go func() {
		if err := sc.Run(); err != nil {
			log.Printf("[viewer] signal connection closed: %v", err)
		}
	}()

	go sampleBandwidth(peer, orch, post)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			orch.Apply(viewer.EventShutdown)
			return
		case fn := <-events:
			fn()
		}
	}
}

// serializingDispatcher wraps a Dispatcher so that its done callback —
// however and on whatever goroutine the underlying Dispatcher invokes
// it (synchronously for local mode, from signalclient's read loop for
// an offload reply, or from the offload client's own timeout goroutine)
// — always runs on the orchestrator's single event-loop goroutine.
type serializingDispatcher struct {
	inner viewer.Dispatcher
	post  func(func())
}

func (s serializingDispatcher) Detect(req core.FrameRequest, done func(core.DetectionResult)) {
	s.inner.Detect(req, func(res core.DetectionResult) {
		s.post(func() { done(res) })
	})
}

// sampleBandwidth reads PeerConnection stats once a second and posts
// the sample onto the orchestrator's event loop.
func sampleBandwidth(peer *webrtcpeer.Peer, orch *viewer.Orchestrator, post func(func())) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		report := peer.Stats()
		var sent, recv uint64
		for _, stat := range report {
			if dc, ok := stat.(webrtc.DataChannelStats); ok {
				sent += dc.BytesSent
				recv += dc.BytesReceived
			}
		}
		sample := telemetry.BandwidthSample{
			BytesSent:     sent,
			BytesReceived: recv,
			TimestampMs:   time.Now().UnixMilli(),
		}
		post(func() { orch.RecordBandwidth(sample) })
	}
}
