// Package core holds the wire-level vocabulary shared by the signaling
// broker, the inference engine, and the viewer orchestrator: rooms, peers,
// frame requests, and detection results.
package core

import "fmt"

// Role identifies which half of a room a peer occupies.
type Role string

const (
	RoleCapture Role = "capture"
	RoleViewer  Role = "viewer"
)

// Wire-level role names.
const (
	WireTypePhone   = "phone"
	WireTypeBrowser = "browser"
)

func RoleFromWireType(t string) (Role, bool) {
	switch t {
	case WireTypePhone:
		return RoleCapture, true
	case WireTypeBrowser:
		return RoleViewer, true
	default:
		return "", false
	}
}

func (r Role) WireType() string {
	if r == RoleCapture {
		return WireTypePhone
	}
	return WireTypeBrowser
}

// Detector tuning defaults.
const (
	DetectorInputSize  = 640
	DefaultScoreThresh = 0.45
	NMSIoUThreshold    = 0.5
	NMSEpsilon         = 1e-6
	NumClasses         = 80

	DefaultThrottleInterval = 100 // milliseconds
	OffloadTimeoutMillis    = 200

	LatencyRingSize    = 100
	BandwidthRingSize  = 10
)

// Detection is a single scored, labeled, normalized bounding box.
type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	XMin  float64 `json:"xmin"`
	YMin  float64 `json:"ymin"`
	XMax  float64 `json:"xmax"`
	YMax  float64 `json:"ymax"`
}

func (d Detection) Valid() bool {
	return d.XMax > d.XMin && d.YMax > d.YMin &&
		d.XMin >= 0 && d.YMin >= 0 && d.XMax <= 1 && d.YMax <= 1
}

// Area returns the box area; used by NMS IoU computation.
func (d Detection) Area() float64 {
	return (d.XMax - d.XMin) * (d.YMax - d.YMin)
}

// IoU computes intersection-over-union against another box, with an
// epsilon guard in the denominator.
func (d Detection) IoU(o Detection) float64 {
	ix0 := max(d.XMin, o.XMin)
	iy0 := max(d.YMin, o.YMin)
	ix1 := min(d.XMax, o.XMax)
	iy1 := min(d.YMax, o.YMax)

	iw := ix1 - ix0
	ih := iy1 - iy0
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := d.Area() + o.Area() - inter
	return inter / (union + NMSEpsilon)
}

// FrameRequest is produced by the capture peer, carried over the
// peer-to-peer data channel, and optionally forwarded to the engine.
type FrameRequest struct {
	Room        string `json:"room"`
	FrameID     string `json:"frame_id"`
	CaptureTS   int64  `json:"capture_ts"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageData   string `json:"imageData"`
}

// DetectionResult echoes a FrameRequest's identity plus engine/local timing.
type DetectionResult struct {
	FrameID      string      `json:"frame_id"`
	CaptureTS    int64       `json:"capture_ts"`
	RecvTS       int64       `json:"recv_ts"`
	InferenceTS  int64       `json:"inference_ts"`
	Detections   []Detection `json:"detections"`
}

// Monotonic reports whether capture_ts <= recv_ts <= inference_ts.
func (r DetectionResult) Monotonic() bool {
	return r.CaptureTS <= r.RecvTS && r.RecvTS <= r.InferenceTS
}

// PeerRef is the (connection id, role, room) tuple identifying a peer.
type PeerRef struct {
	ID   string
	Role Role
	Room string
}

func (p PeerRef) String() string {
	return fmt.Sprintf("%s/%s@%s", p.Role, p.ID, p.Room)
}
