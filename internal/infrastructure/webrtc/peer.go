// Package webrtc wraps pion peer connections behind the ports.PeerConnection
// interface so the negotiation layer stays free of pion callback plumbing.
package webrtc

import (
	"fmt"
	"sync"
	"time"

	"debatemesh/internal/core/domain"
	"debatemesh/internal/core/ports"
	"debatemesh/pkg/emitter"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds the transport-level WebRTC settings shared by every link.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// PeerFactory builds one Peer per remote participant from a shared Config.
type PeerFactory struct {
	config Config
	api    *webrtc.API
	logger *zap.SugaredLogger
}

// NewPeerFactory creates a factory with a shared pion API instance.
func NewPeerFactory(config Config, logger *zap.SugaredLogger) *PeerFactory {
	settingEngine := webrtc.SettingEngine{}
	if config.PortRange.Min > 0 && config.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(config.PortRange.Min, config.PortRange.Max)
	}

	return &PeerFactory{
		config: config,
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		logger: logger,
	}
}

// Create builds the peer connection for one remote participant.
func (f *PeerFactory) Create(remote domain.ParticipantID) (ports.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   f.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	p := &Peer{
		remote: remote,
		pc:     pc,
		events: emitter.New[domain.PeerEvent](),
		logger: f.logger,
	}

	pc.OnICECandidate(p.handleICECandidate)
	pc.OnTrack(p.handleTrack)
	pc.OnICEConnectionStateChange(p.handleICEState)

	return p, nil
}

// Peer is one pion-backed peer connection. pion invokes the On* callbacks
// from its own goroutines; the events emitter carries them upward.
type Peer struct {
	remote domain.ParticipantID
	pc     *webrtc.PeerConnection
	events *emitter.Emitter[domain.PeerEvent]
	logger *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *Peer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// Rollback discards the pending local offer so a remote offer can be applied.
func (p *Peer) Rollback() error {
	return p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (p *Peer) SignalingState() webrtc.SignalingState {
	return p.pc.SignalingState()
}

func (p *Peer) HasRemoteDescription() bool {
	return p.pc.RemoteDescription() != nil
}

// AddTrack attaches a local track and starts draining the sender's RTCP
// stream, which pion requires for interceptor processing.
func (p *Peer) AddTrack(track webrtc.TrackLocal) (ports.TrackSender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	go p.drainSenderRTCP(sender)
	return sender, nil
}

func (p *Peer) Events() *emitter.Emitter[domain.PeerEvent] {
	return p.events
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.events.Close()
	return p.pc.Close()
}

func (p *Peer) handleICECandidate(c *webrtc.ICECandidate) {
	if c == nil {
		// End-of-candidates marker, nothing to relay.
		return
	}
	init := c.ToJSON()
	p.events.Emit(domain.PeerEvent{
		Kind:      domain.PeerEventCandidate,
		Candidate: &init,
	})
}

func (p *Peer) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	kind := domain.MediaAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.MediaVideo
	}

	p.logger.Infow("remote track started",
		"remote", p.remote,
		"track_id", track.ID(),
		"codec", track.Codec().MimeType,
	)

	go p.processReceiverRTCP(receiver)

	p.events.Emit(domain.PeerEvent{
		Kind: domain.PeerEventRemoteTrack,
		Track: &domain.RemoteTrack{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     kind,
		},
	})
}

func (p *Peer) handleICEState(state webrtc.ICEConnectionState) {
	p.logger.Infow("ICE connection state changed",
		"remote", p.remote,
		"ice_state", state,
	)
	p.events.Emit(domain.PeerEvent{
		Kind:     domain.PeerEventICEStateChange,
		ICEState: state,
	})
}

// processReceiverRTCP reads RTCP reports from the receiver and logs link
// quality numbers. The loop ends when the receiver closes.
func (p *Peer) processReceiverRTCP(receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}

		for _, packet := range packets {
			switch rep := packet.(type) {
			case *rtcp.ReceiverReport:
				for _, r := range rep.Reports {
					// FractionLost is an 8-bit fixed-point fraction.
					loss := float64(r.FractionLost) / 255.0
					rtt := time.Duration(r.Delay) * time.Second / 65536
					p.logger.Debugw("receiver report",
						"remote", p.remote,
						"packet_loss", loss,
						"jitter", r.Jitter,
						"rtt", rtt,
					)
				}
			case *rtcp.PictureLossIndication:
				p.logger.Debugw("received PLI", "remote", p.remote)
			}
		}
	}
}

func (p *Peer) drainSenderRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
