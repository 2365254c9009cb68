package viewer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/n0remac/detectrtc/internal/core"
)

type recordingSender struct {
	sent []core.FrameRequest
}

func (r *recordingSender) SendProcessFrame(req core.FrameRequest) {
	r.sent = append(r.sent, req)
}

func TestOrchestratorLocalModeHappyPath(t *testing.T) {
	var forwarded []core.DetectionResult
	local := LocalDetector{Detect0: func(req core.FrameRequest) core.DetectionResult {
		return core.DetectionResult{
			FrameID:     req.FrameID,
			CaptureTS:   req.CaptureTS,
			RecvTS:      req.CaptureTS,
			InferenceTS: req.CaptureTS,
			Detections:  []core.Detection{{Label: "person", Score: 0.9, XMin: 0, YMin: 0, XMax: 0.5, YMax: 0.5}},
		}
	}}
	o := NewOrchestrator(local, func(res core.DetectionResult) { forwarded = append(forwarded, res) })

	o.OnFrame(core.FrameRequest{FrameID: "f1", CaptureTS: 1000})

	require.Len(t, forwarded, 1)
	require.Equal(t, "f1", forwarded[0].FrameID)
	require.Equal(t, "person", forwarded[0].Detections[0].Label)
	require.Equal(t, 0, o.PendingDepth())
}

func TestOrchestratorOffloadTimeoutSynthesizesEmptyResult(t *testing.T) {
	sender := &recordingSender{}
	offload := NewOffloadClient(sender)
	var forwarded []core.DetectionResult
	o := NewOrchestrator(offload, func(res core.DetectionResult) { forwarded = append(forwarded, res) })

	o.OnFrame(core.FrameRequest{FrameID: "f1", CaptureTS: 0})
	require.Len(t, sender.sent, 1)

	require.Eventually(t, func() bool {
		return len(forwarded) == 1
	}, 300*time.Millisecond, 5*time.Millisecond)

	require.Equal(t, "f1", forwarded[0].FrameID)
	require.Empty(t, forwarded[0].Detections)
}

func TestOrchestratorLateOffloadReplyAfterTimeoutIsDiscarded(t *testing.T) {
	sender := &recordingSender{}
	offload := NewOffloadClient(sender)
	var forwarded []core.DetectionResult
	o := NewOrchestrator(offload, func(res core.DetectionResult) { forwarded = append(forwarded, res) })

	o.OnFrame(core.FrameRequest{FrameID: "f1"})
	require.Eventually(t, func() bool { return len(forwarded) == 1 }, 300*time.Millisecond, 5*time.Millisecond)

	// Late reply for a frame_id whose correlation already fired.
	offload.OnResult(core.DetectionResult{FrameID: "f1", Detections: []core.Detection{{Label: "person"}}})

	time.Sleep(20 * time.Millisecond)
	require.Len(t, forwarded, 1, "late reply must not produce a second forward")
}

func TestOrchestratorPeerLeftAbandonsInFlightOffload(t *testing.T) {
	sender := &recordingSender{}
	offload := NewOffloadClient(sender)
	var forwarded []core.DetectionResult
	o := NewOrchestrator(offload, func(res core.DetectionResult) { forwarded = append(forwarded, res) })
	require.NoError(t, o.Apply(EventControlOpen))
	require.NoError(t, o.Apply(EventJoinAcked))
	require.NoError(t, o.Apply(EventPeerJoined))
	require.NoError(t, o.Apply(EventOfferSent))
	require.NoError(t, o.Apply(EventTransportEstablished))

	o.OnFrame(core.FrameRequest{FrameID: "f1"})
	require.NoError(t, o.OnPeerLeft())

	require.Len(t, forwarded, 1)
	require.Equal(t, WaitingForPeer, o.State())
}
