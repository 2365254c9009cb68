// Package capture implements a minimal capture-peer stand-in: a Go
// process that reads from a webcam or video file and streams
// JPEG frame requests over the "frames" data channel, so the pipeline
// is exercisable end-to-end without a phone.
package capture

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/n0remac/detectrtc/internal/core"
	"github.com/n0remac/detectrtc/internal/logx"
)

// Sender is the transport the capture peer pushes Frame Requests
// through — bound to a webrtcpeer.Peer's data channel by cmd/capture.
type Sender interface {
	Send(data []byte) error
}

// Source produces BGR frames; gocv.VideoCapture implements this in
// production, a synthetic source can stand in for tests.
type Source interface {
	Read(m *gocv.Mat) bool
}

type Peer struct {
	room   string
	src    Source
	sender Sender
	log    logx.Logger

	frameNum int
}

func New(room string, src Source, sender Sender) *Peer {
	return &Peer{room: room, src: src, sender: sender, log: logx.New("capture")}
}

// Run pushes one frame every interval until stop is closed. Each frame
// is JPEG-encoded and wrapped in a self-describing data URI.
func (p *Peer) Run(interval time.Duration, stop <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			if err := p.pushFrame(&mat); err != nil {
				p.log.Error("push frame failed", err)
			}
		}
	}
}

func (p *Peer) pushFrame(mat *gocv.Mat) error {
	if ok := p.src.Read(mat); !ok || mat.Empty() {
		return fmt.Errorf("capture: empty frame from source")
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *mat)
	if err != nil {
		return fmt.Errorf("capture: jpeg encode: %w", err)
	}
	defer buf.Close()

	p.frameNum++
	req := core.FrameRequest{
		Room:      p.room,
		FrameID:   fmt.Sprintf("f%d-%d", time.Now().UnixMilli(), p.frameNum),
		CaptureTS: time.Now().UnixMilli(),
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		ImageData: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.GetBytes()),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("capture: marshal frame request: %w", err)
	}
	return p.sender.Send(data)
}

// OnDetectionResult is wired to the data channel's inbound messages —
// a capture peer may render overlays from the echoed results; this
// stand-in just logs the round trip.
func (p *Peer) OnDetectionResult(data []byte) {
	var res core.DetectionResult
	if err := json.Unmarshal(data, &res); err != nil {
		p.log.Warn("undecodable detection result", "err", err.Error())
		return
	}
	p.log.Info("detection result", "frame_id", res.FrameID, "n", len(res.Detections))
}
