package capture

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/n0remac/detectrtc/internal/core"
)

type emptySource struct{}

func (emptySource) Read(m *gocv.Mat) bool { return false }

type recordingSender struct {
	sent [][]byte
}

func (r *recordingSender) Send(data []byte) error {
	r.sent = append(r.sent, data)
	return nil
}

func TestPushFrameErrorsOnEmptySource(t *testing.T) {
	sender := &recordingSender{}
	p := New("room1", emptySource{}, sender)

	mat := gocv.NewMat()
	defer mat.Close()

	err := p.pushFrame(&mat)
	require.Error(t, err)
	require.Empty(t, sender.sent)
}

func TestOnDetectionResultHandlesUndecodable(t *testing.T) {
	p := New("room1", emptySource{}, &recordingSender{})
	p.OnDetectionResult([]byte("not json"))
}

func TestOnDetectionResultDecodesValidPayload(t *testing.T) {
	p := New("room1", emptySource{}, &recordingSender{})
	res := core.DetectionResult{FrameID: "f1", Detections: []core.Detection{{Label: "person"}}}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	p.OnDetectionResult(b)
}
