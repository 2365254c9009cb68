package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/n0remac/detectrtc/internal/core"
)

func TestSubmitThrottlesSecondFrameInSameRoom(t *testing.T) {
	d := NewDispatcher(Config{
		ModelPath:      "/nonexistent/model.onnx",
		ScoreThreshold: core.DefaultScoreThresh,
		ThrottleMillis: 100,
	})
	defer d.Close()

	errs := make(chan string, 4)
	onError := func(msg string) { errs <- msg }
	onResult := func(core.DetectionResult) { t.Fatal("unexpected result with no model available") }

	d.Submit("room-a", core.FrameRequest{FrameID: "f1"}, onResult, onError)
	d.Submit("room-a", core.FrameRequest{FrameID: "f2"}, onResult, onError)

	// "throttled" is produced synchronously on this goroutine by the
	// second Submit; "model unavailable" arrives asynchronously from the
	// dispatcher goroutine behind a cgo model load. Either can land in
	// errs first, so collect both before asserting on their contents.
	first := <-errs
	second := <-errs
	got := []string{first, second}
	require.Contains(t, got, "throttled")

	hasUnavailable := false
	for _, msg := range got {
		if msg != "throttled" {
			require.Contains(t, msg, "model unavailable")
			hasUnavailable = true
		}
	}
	require.True(t, hasUnavailable)
}

func TestSubmitDoesNotThrottleDifferentRooms(t *testing.T) {
	d := NewDispatcher(Config{
		ModelPath:      "/nonexistent/model.onnx",
		ScoreThreshold: core.DefaultScoreThresh,
		ThrottleMillis: 100,
	})
	defer d.Close()

	errs := make(chan string, 4)
	onError := func(msg string) { errs <- msg }
	onResult := func(core.DetectionResult) {}

	d.Submit("room-a", core.FrameRequest{FrameID: "f1"}, onResult, onError)
	d.Submit("room-b", core.FrameRequest{FrameID: "f2"}, onResult, onError)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-errs:
			require.Contains(t, msg, "model unavailable")
			got[msg] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for both rooms to be processed")
		}
	}
}

func TestStatusReflectsUnloadedModel(t *testing.T) {
	d := NewDispatcher(Config{ModelPath: "/nonexistent/model.onnx"})
	defer d.Close()

	loaded, path := d.Status()
	require.False(t, loaded)
	require.Equal(t, "/nonexistent/model.onnx", path)
}
