// cmd/capture is a minimal Go stand-in for the mobile camera capture
// peer: it joins a room, establishes the peer-to-peer data channel,
// and streams JPEG frame requests to whichever viewer is present.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gocv.io/x/gocv"
	"github.com/pion/webrtc/v4"

	"github.com/n0remac/detectrtc/internal/capture"
	"github.com/n0remac/detectrtc/internal/core"
	"github.com/n0remac/detectrtc/internal/signalclient"
	"github.com/n0remac/detectrtc/internal/webrtcpeer"
)

func main() {
	signalURL := flag.String("signal", "ws://localhost:8080/ws/signal", "broker websocket URL")
	room := flag.String("room", "default", "room id to join")
	videoDevice := flag.Int("device", 0, "webcam device index (ignored if -file is set)")
	videoFile := flag.String("file", "", "path to a video file to stream instead of the webcam")
	fps := flag.Float64("fps", 10, "frames per second to push (the engine's 100ms throttle expects <=10)")
	flag.Parse()

	sc, err := signalclient.Dial(*signalURL, *room, core.RoleCapture)
	if err != nil {
		log.Fatalf("[capture] dial: %v", err)
	}
	defer sc.Close()

	peer, err := webrtcpeer.New(true /* polite */, sc)
	if err != nil {
		log.Fatalf("[capture] new peer: %v", err)
	}
	defer peer.Close()

	sc.OnOffer(func(sdp webrtc.SessionDescription) {
		if err := peer.HandleOffer(sdp); err != nil {
			log.Printf("[capture] handle offer: %v", err)
		}
	})
	sc.OnCandidate(func(c webrtc.ICECandidateInit) {
		if err := peer.HandleCandidate(c); err != nil {
			log.Printf("[capture] handle candidate: %v", err)
		}
	})

	var source gocv.VideoCapture
	if *videoFile != "" {
		vc, err := gocv.VideoCaptureFile(*videoFile)
		if err != nil {
			log.Fatalf("[capture] open file %q: %v", *videoFile, err)
		}
		source = *vc
	} else {
		vc, err := gocv.VideoCaptureDevice(*videoDevice)
		if err != nil {
			log.Fatalf("[capture] open device %d: %v", *videoDevice, err)
		}
		source = *vc
	}
	defer source.Close()

	capturePeer := capture.New(*room, &source, peer)

	peer.OnDataOpen = func() {
		log.Println("[capture] data channel open, streaming frames")
	}
	peer.OnMessage = capturePeer.OnDetectionResult

	if err := peer.OpenDataChannel(); err != nil {
		log.Fatalf("[capture] open data channel: %v", err)
	}

	go func() {
		if err := sc.Run(); err != nil {
			log.Printf("[capture] signal connection closed: %v", err)
		}
	}()

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(stop)
	}()

	interval := time.Duration(float64(time.Second) / *fps)
	if err := capturePeer.Run(interval, stop); err != nil {
		log.Fatalf("[capture] run: %v", err)
	}
}
