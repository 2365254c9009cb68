package signaling

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/n0remac/detectrtc/internal/core"
)

// Message type names.
const (
	TypeJoinRoom       = "join-room"
	TypePeerJoined     = "peer-joined"
	TypePeerLeft       = "peer-left"
	TypeOffer          = "offer"
	TypeAnswer         = "answer"
	TypeICECandidate   = "ice-candidate"
	TypeProcessFrame   = "process-frame"
	TypeDetectionResult = "detection-result"
	TypeProcessingError = "processing-error"
	TypeInitModel      = "initialize-server-model"
	TypeInitModelResult = "model-initialization-result"
)

// envelope is the outer shape every signaling message shares: a name and
// a freeform payload. The broker never reaches into payload fields it
// doesn't need to route — offer/answer/candidate bodies stay opaque.
type envelope struct {
	Type string          `json:"type"`
	Room string          `json:"room,omitempty"`

	// join-room
	PeerType string `json:"peerType,omitempty"`

	// peer-joined / peer-left
	PeerID string `json:"peerId,omitempty"`

	// offer/answer/candidate — relayed verbatim plus the sender's id.
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	From      string          `json:"from,omitempty"`

	// process-frame
	FrameID   string `json:"frame_id,omitempty"`
	CaptureTS int64  `json:"capture_ts,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	ImageData string `json:"imageData,omitempty"`

	// detection-result
	RecvTS      int64           `json:"recv_ts,omitempty"`
	InferenceTS int64           `json:"inference_ts,omitempty"`
	Detections  []core.Detection `json:"detections,omitempty"`

	// processing-error
	Error string `json:"error,omitempty"`

	// model-initialization-result
	Success  bool   `json:"success,omitempty"`
	Message  string `json:"message,omitempty"`
	LoadTime int64  `json:"loadTime,omitempty"`
}

// requiredFields lists, per message type, the fields that must be
// present for the message to be routable. Checked with gjson before a
// full unmarshal so a flood of malformed frames doesn't cost an
// allocation per message.
var requiredFields = map[string][]string{
	TypeJoinRoom:     {"room", "peerType"},
	TypeOffer:        {"room", "offer"},
	TypeAnswer:       {"room", "answer"},
	TypeICECandidate: {"room", "candidate"},
	TypeProcessFrame: {"room", "frame_id", "imageData"},
	TypeInitModel:    {"room"},
}

// validate performs the gjson fast-path check described above. It
// returns the message type and whether the raw payload is well-formed
// enough to route.
func validate(raw []byte) (msgType string, ok bool) {
	typ := gjson.GetBytes(raw, "type")
	if !typ.Exists() || typ.Type != gjson.String {
		return "", false
	}
	fields, known := requiredFields[typ.Str]
	if !known {
		// Unknown types still pass through to decode(); the hub logs
		// and drops them there.
		return typ.Str, true
	}
	for _, f := range fields {
		if !gjson.GetBytes(raw, f).Exists() {
			return typ.Str, false
		}
	}
	return typ.Str, true
}

func decode(raw []byte) (envelope, error) {
	var e envelope
	err := json.Unmarshal(raw, &e)
	return e, err
}

func encode(e envelope) []byte {
	b, _ := json.Marshal(e)
	return b
}
