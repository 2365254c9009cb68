// Package webrtcpeer wraps a pion/webrtc/v4 PeerConnection plus the
// single "frames" DataChannel used by the capture and viewer processes.
// ICE restart and offer/answer glare handling use a makingOffer/polite
// convention: the polite side rolls back on a colliding offer, the
// impolite side ignores it.
package webrtcpeer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/n0remac/detectrtc/internal/logx"
)

const dataChannelLabel = "frames"

// SignalSender is how Peer emits outgoing offer/answer/candidate
// envelopes; the caller (cmd/viewer or cmd/capture) wires this to its
// signaling control connection.
type SignalSender interface {
	SendOffer(sdp webrtc.SessionDescription)
	SendAnswer(sdp webrtc.SessionDescription)
	SendCandidate(c webrtc.ICECandidateInit)
}

// Peer owns one PeerConnection and its data channel. Polite is true for
// the side that should roll back on offer glare. The viewer always
// offers in steady state and is impolite — it never expects an
// unsolicited offer; the capture peer only ever offers during an ICE
// restart race and is polite, deferring to an incoming offer instead.
type Peer struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	signal SignalSender
	log    logx.Logger

	polite      bool
	makingOffer atomic.Bool

	OnMessage    func(data []byte)
	OnDataOpen   func()
	OnStateClose func()
}

func New(polite bool, signal SignalSender) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, fmt.Errorf("webrtcpeer: new peer connection: %w", err)
	}
	p := &Peer{pc: pc, signal: signal, polite: polite, log: logx.New("webrtc")}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if s == webrtc.ICEConnectionStateFailed {
			go p.restartICE()
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			if p.OnStateClose != nil {
				p.OnStateClose()
			}
		}
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		p.signal.SendCandidate(c.ToJSON())
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != dataChannelLabel {
			return
		}
		p.bindDataChannel(dc)
	})

	return p, nil
}

// OpenDataChannel is called by the side that creates the "frames"
// channel — the capture peer, since it's the data-producing side.
func (p *Peer) OpenDataChannel() error {
	dc, err := p.pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{
		Ordered: boolPtr(true),
	})
	if err != nil {
		return fmt.Errorf("webrtcpeer: create data channel: %w", err)
	}
	p.bindDataChannel(dc)
	return nil
}

func (p *Peer) bindDataChannel(dc *webrtc.DataChannel) {
	p.dc = dc
	dc.OnOpen(func() {
		if p.OnDataOpen != nil {
			p.OnDataOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.OnMessage != nil {
			p.OnMessage(msg.Data)
		}
	})
}

// Send writes to the data channel if it's open; otherwise it returns an
// error and the caller drops the message — best effort, no retry.
func (p *Peer) Send(data []byte) error {
	if p.dc == nil || p.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("webrtcpeer: data channel not open")
	}
	return p.dc.Send(data)
}

// Offer creates and sends a local offer, marking the glare-risk window
// around CreateOffer/SetLocalDescription.
func (p *Peer) Offer() error {
	p.makingOffer.Store(true)
	defer p.makingOffer.Store(false)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("webrtcpeer: create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("webrtcpeer: set local description: %w", err)
	}
	p.signal.SendOffer(*p.pc.LocalDescription())
	return nil
}

// HandleOffer applies a remote offer, resolving glare per the
// polite/impolite convention: an impolite peer that is itself mid-offer
// or not stable ignores the incoming offer; a polite peer rolls back
// first.
func (p *Peer) HandleOffer(sdp webrtc.SessionDescription) error {
	collision := p.makingOffer.Load() || p.pc.SignalingState() != webrtc.SignalingStateStable
	if collision && !p.polite {
		p.log.Warn("glare: ignoring remote offer (impolite)")
		return nil
	}
	if collision {
		if err := p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			return fmt.Errorf("webrtcpeer: rollback: %w", err)
		}
	}
	if err := p.pc.SetRemoteDescription(sdp); err != nil {
		return fmt.Errorf("webrtcpeer: set remote description (offer): %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("webrtcpeer: create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("webrtcpeer: set local description (answer): %w", err)
	}
	p.signal.SendAnswer(*p.pc.LocalDescription())
	return nil
}

func (p *Peer) HandleAnswer(sdp webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(sdp); err != nil {
		return fmt.Errorf("webrtcpeer: set remote description (answer): %w", err)
	}
	return nil
}

func (p *Peer) HandleCandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

// restartICE retries negotiation once on connection failure.
func (p *Peer) restartICE() {
	time.Sleep(200 * time.Millisecond) // let transient network blips settle
	if p.pc.SignalingState() != webrtc.SignalingStateStable {
		return
	}
	p.makingOffer.Store(true)
	defer p.makingOffer.Store(false)

	offer, err := p.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		p.log.Error("ICE restart offer failed", err)
		return
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		p.log.Error("ICE restart set local description failed", err)
		return
	}
	p.signal.SendOffer(*p.pc.LocalDescription())
}

// Stats returns the PeerConnection's current stats report, the source
// for bandwidth telemetry snapshots.
func (p *Peer) Stats() webrtc.StatsReport {
	return p.pc.GetStats()
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

func boolPtr(b bool) *bool { return &b }
