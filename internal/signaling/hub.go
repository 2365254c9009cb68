// Package signaling implements the rendezvous broker: join-room/offer/
// answer/ice-candidate relay keyed by room id, plus the process-frame/
// detection-result handoff to the inference engine.
package signaling

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/n0remac/detectrtc/internal/core"
	"github.com/n0remac/detectrtc/internal/logx"
)

// Engine is the inference-engine side of the broker<->engine handoff.
// The concrete implementation lives in internal/engine; this interface
// exists so the signaling package never imports gocv.
type Engine interface {
	Submit(room string, req core.FrameRequest, onResult func(core.DetectionResult), onError func(string))
	Status() (loaded bool, modelPath string)
	Initialize() (loadMillis int64, err error)
}

// room holds the at-most-one-capture, at-most-one-viewer slots for a
// single room id.
type room struct {
	id      string
	capture *client
	viewer  *client
}

func (r *room) slot(role core.Role) *client {
	if role == core.RoleCapture {
		return r.capture
	}
	return r.viewer
}

func (r *room) setSlot(role core.Role, c *client) {
	if role == core.RoleCapture {
		r.capture = c
	} else {
		r.viewer = c
	}
}

func (r *room) other(role core.Role) *client {
	if role == core.RoleCapture {
		return r.viewer
	}
	return r.capture
}

func (r *room) empty() bool {
	return r.capture == nil && r.viewer == nil
}

// client is one control connection: either a capture peer or a viewer
// peer, identified by a broker-assigned id.
type client struct {
	id   string
	room string
	role core.Role

	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) closeSend() {
	c.once.Do(func() { close(c.send) })
}

// Hub is the process-wide signaling broker. It is constructed explicitly
// by the caller (cmd/server) rather than as a package-level var, so
// its lifecycle stays visible instead of implicit in module load.
type Hub struct {
	log    logx.Logger
	engine Engine

	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub(engine Engine) *Hub {
	return &Hub{
		log:    logx.New("broker"),
		engine: engine,
		rooms:  make(map[string]*room),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ServeHTTP upgrades a control connection and runs its read/write pumps
// until it disconnects, at which point the room is cleaned up and the
// remaining peer (if any) is notified.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", err)
		return
	}
	c := &client{
		id:   uuid.NewString()[:8],
		send: make(chan []byte, 256),
		conn: conn,
	}
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Error("write error", err, "peer", c.id)
			return
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.onDisconnect(c)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		typ, ok := validate(raw)
		if !ok {
			h.log.Warn("dropping malformed message", "type", typ, "peer", c.id)
			continue
		}
		env, err := decode(raw)
		if err != nil {
			h.log.Warn("dropping undecodable message", "err", err.Error(), "peer", c.id)
			continue
		}
		h.handle(c, env)
	}
}

func (h *Hub) handle(c *client, env envelope) {
	switch env.Type {
	case TypeJoinRoom:
		role, ok := core.RoleFromWireType(env.PeerType)
		if !ok {
			h.log.Warn("join-room with unknown peerType", "peerType", env.PeerType)
			return
		}
		h.joinRoom(c, env.Room, role)

	case TypeOffer, TypeAnswer, TypeICECandidate:
		h.relay(c, env)

	case TypeProcessFrame:
		h.submitFrame(c, env)

	case TypeInitModel:
		h.initializeModel(c, env.Room)

	default:
		h.log.Warn("unknown message type", "type", env.Type, "peer", c.id)
	}
}

// joinRoom associates c with the role slot for room, evicting any prior
// occupant of that slot on a second same-role join.
func (h *Hub) joinRoom(c *client, roomID string, role core.Role) {
	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	if !ok {
		rm = &room{id: roomID}
		h.rooms[roomID] = rm
	}
	if incumbent := rm.slot(role); incumbent != nil && incumbent != c {
		h.sendLocked(incumbent, envelope{Type: TypePeerLeft, PeerID: incumbent.id, PeerType: role.WireType()})
		incumbent.closeSend()
	}
	rm.setSlot(role, c)
	c.assignRoom(roomID, role)
	opposite := rm.other(role)
	h.mu.Unlock()

	if opposite != nil {
		// "the newcomer receives peer-joined before any subsequent
		// SDP/ICE relay" — sent synchronously, before returning.
		h.send(c, envelope{Type: TypePeerJoined, PeerID: opposite.id, PeerType: opposite.role.WireType()})
		h.send(opposite, envelope{Type: TypePeerJoined, PeerID: c.id, PeerType: role.WireType()})
	}
}

// relay forwards offer/answer/ice-candidate to every other peer in the
// room, tagging the sender. Failure to reach an absent peer is silent.
func (h *Hub) relay(c *client, env envelope) {
	h.mu.Lock()
	rm, ok := h.rooms[c.room]
	var target *client
	if ok {
		target = rm.other(c.role)
	}
	h.mu.Unlock()
	if target == nil {
		return
	}
	env.From = c.id
	h.send(target, env)
}

// submitFrame hands a process-frame request to the engine and arranges
// for the result (or error) to be routed back to the viewer currently
// registered for the room. If no viewer is registered at completion
// time, the result is dropped.
func (h *Hub) submitFrame(c *client, env envelope) {
	req := core.FrameRequest{
		Room:      env.Room,
		FrameID:   env.FrameID,
		CaptureTS: env.CaptureTS,
		Width:     env.Width,
		Height:    env.Height,
		ImageData: env.ImageData,
	}
	h.engine.Submit(env.Room, req,
		func(res core.DetectionResult) {
			h.mu.Lock()
			rm, ok := h.rooms[env.Room]
			h.mu.Unlock()
			if !ok || rm.viewer == nil {
				return
			}
			h.send(rm.viewer, envelope{
				Type:        TypeDetectionResult,
				FrameID:     res.FrameID,
				CaptureTS:   res.CaptureTS,
				RecvTS:      res.RecvTS,
				InferenceTS: res.InferenceTS,
				Detections:  res.Detections,
			})
		},
		func(msg string) {
			h.send(c, envelope{Type: TypeProcessingError, Error: msg})
		},
	)
}

func (h *Hub) initializeModel(c *client, room string) {
	go func() {
		loadMillis, err := h.engine.Initialize()
		if err != nil {
			h.send(c, envelope{Type: TypeInitModelResult, Success: false, Message: err.Error(), Room: room})
			return
		}
		h.send(c, envelope{Type: TypeInitModelResult, Success: true, LoadTime: loadMillis, Room: room})
	}()
}

// onDisconnect clears the departing peer's slot, emits peer-left to the
// remaining occupant, and frees the room descriptor once both slots are
// empty.
func (h *Hub) onDisconnect(c *client) {
	c.closeSend()
	c.conn.Close()
	if c.room == "" {
		return
	}
	h.mu.Lock()
	rm, ok := h.rooms[c.room]
	if !ok {
		h.mu.Unlock()
		return
	}
	if rm.slot(c.role) == c {
		rm.setSlot(c.role, nil)
	}
	opposite := rm.other(c.role)
	empty := rm.empty()
	if empty {
		delete(h.rooms, c.room)
	}
	h.mu.Unlock()

	if opposite != nil {
		h.send(opposite, envelope{Type: TypePeerLeft, PeerID: c.id, PeerType: c.role.WireType()})
	}
}

func (h *Hub) send(c *client, env envelope) {
	select {
	case c.send <- encode(env):
	case <-time.After(time.Second):
		h.log.Warn("send queue overflow, dropping", "peer", c.id, "type", env.Type)
	}
}

// sendLocked is send() called while h.mu is already held; it must not
// block on a slow consumer, so it's best-effort non-blocking.
func (h *Hub) sendLocked(c *client, env envelope) {
	select {
	case c.send <- encode(env):
	default:
		h.log.Warn("send queue full during eviction, dropping", "peer", c.id)
	}
}

func (c *client) assignRoom(room string, role core.Role) {
	c.room = room
	c.role = role
}
