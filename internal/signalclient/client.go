// Package signalclient is the client-side counterpart of
// internal/signaling: it dials the broker's /ws/signal endpoint and
// speaks the same wire protocol from the capture or viewer process's
// side.
package signalclient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/n0remac/detectrtc/internal/core"
	"github.com/n0remac/detectrtc/internal/logx"
)

type wireMessage struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`

	PeerType string `json:"peerType,omitempty"`
	PeerID   string `json:"peerId,omitempty"`

	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	From      string          `json:"from,omitempty"`

	FrameID   string `json:"frame_id,omitempty"`
	CaptureTS int64  `json:"capture_ts,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	ImageData string `json:"imageData,omitempty"`

	RecvTS      int64            `json:"recv_ts,omitempty"`
	InferenceTS int64            `json:"inference_ts,omitempty"`
	Detections  []core.Detection `json:"detections,omitempty"`

	Error string `json:"error,omitempty"`

	Success  bool   `json:"success,omitempty"`
	Message  string `json:"message,omitempty"`
	LoadTime int64  `json:"loadTime,omitempty"`
}

// Client is a control connection to the broker, used by both the
// capture and viewer processes (they differ only in which peerType
// they join as and which callbacks they register).
type Client struct {
	conn *websocket.Conn
	room string
	log  logx.Logger

	onPeerJoined      func(peerID, peerType string)
	onPeerLeft        func(peerID, peerType string)
	onOffer           func(webrtc.SessionDescription)
	onAnswer          func(webrtc.SessionDescription)
	onCandidate       func(webrtc.ICECandidateInit)
	onDetectionResult func(core.DetectionResult)
	onProcessingError func(string)
	onModelInitResult func(success bool, message string, loadMillis int64)
}

func Dial(url, room string, role core.Role) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("signalclient: dial: %w", err)
	}
	c := &Client{conn: conn, room: room, log: logx.New("signalclient")}
	if err := c.writeJSON(wireMessage{Type: "join-room", Room: room, PeerType: role.WireType()}); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) OnPeerJoined(fn func(peerID, peerType string))      { c.onPeerJoined = fn }
func (c *Client) OnPeerLeft(fn func(peerID, peerType string))        { c.onPeerLeft = fn }
func (c *Client) OnOffer(fn func(webrtc.SessionDescription))         { c.onOffer = fn }
func (c *Client) OnAnswer(fn func(webrtc.SessionDescription))        { c.onAnswer = fn }
func (c *Client) OnCandidate(fn func(webrtc.ICECandidateInit))       { c.onCandidate = fn }
func (c *Client) OnDetectionResult(fn func(core.DetectionResult))    { c.onDetectionResult = fn }
func (c *Client) OnProcessingError(fn func(string))                  { c.onProcessingError = fn }
func (c *Client) OnModelInitResult(fn func(bool, string, int64))     { c.onModelInitResult = fn }

// SendOffer/SendAnswer/SendCandidate satisfy webrtcpeer.SignalSender.
func (c *Client) SendOffer(sdp webrtc.SessionDescription) {
	c.sendSDP("offer", sdp)
}

func (c *Client) SendAnswer(sdp webrtc.SessionDescription) {
	c.sendSDP("answer", sdp)
}

func (c *Client) sendSDP(msgType string, sdp webrtc.SessionDescription) {
	b, err := json.Marshal(sdp)
	if err != nil {
		c.log.Error("marshal sdp failed", err)
		return
	}
	msg := wireMessage{Type: msgType, Room: c.room}
	if msgType == "offer" {
		msg.Offer = b
	} else {
		msg.Answer = b
	}
	if err := c.writeJSON(msg); err != nil {
		c.log.Error("send "+msgType+" failed", err)
	}
}

func (c *Client) SendCandidate(ci webrtc.ICECandidateInit) {
	b, err := json.Marshal(ci)
	if err != nil {
		c.log.Error("marshal candidate failed", err)
		return
	}
	if err := c.writeJSON(wireMessage{Type: "ice-candidate", Room: c.room, Candidate: b}); err != nil {
		c.log.Error("send candidate failed", err)
	}
}

// SendProcessFrame satisfies viewer.SignalSender (offload dispatch).
func (c *Client) SendProcessFrame(req core.FrameRequest) {
	err := c.writeJSON(wireMessage{
		Type:      "process-frame",
		Room:      c.room,
		FrameID:   req.FrameID,
		CaptureTS: req.CaptureTS,
		Width:     req.Width,
		Height:    req.Height,
		ImageData: req.ImageData,
	})
	if err != nil {
		c.log.Error("send process-frame failed", err)
	}
}

func (c *Client) SendInitModel() error {
	return c.writeJSON(wireMessage{Type: "initialize-server-model", Room: c.room})
}

func (c *Client) writeJSON(m wireMessage) error {
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(m)
}

// Run reads messages until the connection closes, dispatching to the
// registered callbacks. It blocks; callers run it in its own goroutine.
func (c *Client) Run() error {
	for {
		var msg wireMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return err
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg wireMessage) {
	switch msg.Type {
	case "peer-joined":
		if c.onPeerJoined != nil {
			c.onPeerJoined(msg.PeerID, msg.PeerType)
		}
	case "peer-left":
		if c.onPeerLeft != nil {
			c.onPeerLeft(msg.PeerID, msg.PeerType)
		}
	case "offer":
		if c.onOffer != nil {
			var sdp webrtc.SessionDescription
			if err := json.Unmarshal(msg.Offer, &sdp); err == nil {
				c.onOffer(sdp)
			}
		}
	case "answer":
		if c.onAnswer != nil {
			var sdp webrtc.SessionDescription
			if err := json.Unmarshal(msg.Answer, &sdp); err == nil {
				c.onAnswer(sdp)
			}
		}
	case "ice-candidate":
		if c.onCandidate != nil {
			var ci webrtc.ICECandidateInit
			if err := json.Unmarshal(msg.Candidate, &ci); err == nil {
				c.onCandidate(ci)
			}
		}
	case "detection-result":
		if c.onDetectionResult != nil {
			c.onDetectionResult(core.DetectionResult{
				FrameID:     msg.FrameID,
				CaptureTS:   msg.CaptureTS,
				RecvTS:      msg.RecvTS,
				InferenceTS: msg.InferenceTS,
				Detections:  msg.Detections,
			})
		}
	case "processing-error":
		if c.onProcessingError != nil {
			c.onProcessingError(msg.Error)
		}
	case "model-initialization-result":
		if c.onModelInitResult != nil {
			c.onModelInitResult(msg.Success, msg.Message, msg.LoadTime)
		}
	default:
		c.log.Warn("unknown message type from broker", "type", msg.Type)
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
