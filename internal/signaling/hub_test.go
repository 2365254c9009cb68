package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/detectrtc/internal/core"
)

type fakeEngine struct {
	submitted []core.FrameRequest
}

func (f *fakeEngine) Submit(room string, req core.FrameRequest, onResult func(core.DetectionResult), onError func(string)) {
	f.submitted = append(f.submitted, req)
	onResult(core.DetectionResult{
		FrameID:     req.FrameID,
		CaptureTS:   req.CaptureTS,
		RecvTS:      req.CaptureTS + 1,
		InferenceTS: req.CaptureTS + 2,
		Detections:  []core.Detection{{Label: "person", Score: 0.9, XMin: 0.1, YMin: 0.1, XMax: 0.5, YMax: 0.5}},
	})
}

func (f *fakeEngine) Status() (bool, string)        { return true, "fake.onnx" }
func (f *fakeEngine) Initialize() (int64, error)    { return 5, nil }

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := decode(raw)
	require.NoError(t, err)
	return env
}

func TestJoinRoomNotifiesBothPeers(t *testing.T) {
	hub := NewHub(&fakeEngine{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	capture := dial(t, srv.URL)
	defer capture.Close()
	require.NoError(t, capture.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "abcd1234", PeerType: core.WireTypePhone,
	})))

	viewer := dial(t, srv.URL)
	defer viewer.Close()
	require.NoError(t, viewer.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "abcd1234", PeerType: core.WireTypeBrowser,
	})))

	fromCapture := readEnvelope(t, capture)
	require.Equal(t, TypePeerJoined, fromCapture.Type)
	require.Equal(t, core.WireTypeBrowser, fromCapture.PeerType)

	fromViewer := readEnvelope(t, viewer)
	require.Equal(t, TypePeerJoined, fromViewer.Type)
	require.Equal(t, core.WireTypePhone, fromViewer.PeerType)
}

func TestSecondJoinEvictsIncumbent(t *testing.T) {
	hub := NewHub(&fakeEngine{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	first := dial(t, srv.URL)
	defer first.Close()
	require.NoError(t, first.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "room1", PeerType: core.WireTypeBrowser,
	})))

	second := dial(t, srv.URL)
	defer second.Close()
	require.NoError(t, second.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "room1", PeerType: core.WireTypeBrowser,
	})))

	evicted := readEnvelope(t, first)
	require.Equal(t, TypePeerLeft, evicted.Type)

	first.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := first.ReadMessage()
	require.Error(t, err)
}

func TestOfferRelayTagsSender(t *testing.T) {
	hub := NewHub(&fakeEngine{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	capture := dial(t, srv.URL)
	defer capture.Close()
	require.NoError(t, capture.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "r", PeerType: core.WireTypePhone,
	})))

	viewer := dial(t, srv.URL)
	defer viewer.Close()
	require.NoError(t, viewer.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "r", PeerType: core.WireTypeBrowser,
	})))
	readEnvelope(t, capture)
	readEnvelope(t, viewer)

	require.NoError(t, viewer.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeOffer, Room: "r", Offer: []byte(`{"sdp":"fake"}`),
	})))

	got := readEnvelope(t, capture)
	require.Equal(t, TypeOffer, got.Type)
	require.NotEmpty(t, got.From)
}

func TestProcessFrameRoutesResultToViewer(t *testing.T) {
	eng := &fakeEngine{}
	hub := NewHub(eng)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	capture := dial(t, srv.URL)
	defer capture.Close()
	require.NoError(t, capture.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "fr", PeerType: core.WireTypePhone,
	})))

	viewer := dial(t, srv.URL)
	defer viewer.Close()
	require.NoError(t, viewer.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "fr", PeerType: core.WireTypeBrowser,
	})))
	readEnvelope(t, capture)
	readEnvelope(t, viewer)

	require.NoError(t, capture.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeProcessFrame, Room: "fr", FrameID: "f1", CaptureTS: 100, ImageData: "data:image/jpeg;base64,AAAA",
	})))

	res := readEnvelope(t, viewer)
	require.Equal(t, TypeDetectionResult, res.Type)
	require.Equal(t, "f1", res.FrameID)
	require.Len(t, res.Detections, 1)
	require.Len(t, eng.submitted, 1)
}

func TestMalformedMessageIsDropped(t *testing.T) {
	hub := NewHub(&fakeEngine{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	capture := dial(t, srv.URL)
	defer capture.Close()

	require.NoError(t, capture.WriteMessage(websocket.TextMessage, []byte(`{"type":"join-room"}`)))
	require.NoError(t, capture.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "ok", PeerType: core.WireTypePhone,
	})))

	viewer := dial(t, srv.URL)
	defer viewer.Close()
	require.NoError(t, viewer.WriteMessage(websocket.TextMessage, encode(envelope{
		Type: TypeJoinRoom, Room: "ok", PeerType: core.WireTypeBrowser,
	})))

	fromCapture := readEnvelope(t, capture)
	require.Equal(t, TypePeerJoined, fromCapture.Type)
}
