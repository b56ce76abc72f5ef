package ports

import (
	"context"
	"time"

	"debatemesh/internal/core/domain"
	"debatemesh/pkg/emitter"

	"github.com/pion/webrtc/v3"
)

// TrackSender is the per-kind sender handle a peer connection returns when a
// local track is attached.
type TrackSender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// PeerConnection wraps exactly one underlying peer-to-peer media connection.
// Callers must only AddICECandidate after SetRemoteDescription has succeeded;
// that ordering contract is owned by the negotiation layer.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	// Rollback discards the pending local description (polite collision path).
	Rollback() error

	SignalingState() webrtc.SignalingState
	HasRemoteDescription() bool

	AddTrack(track webrtc.TrackLocal) (TrackSender, error)

	Events() *emitter.Emitter[domain.PeerEvent]

	Close() error
}

// PeerFactory creates the peer connection for one remote participant.
type PeerFactory func(remote domain.ParticipantID) (PeerConnection, error)

// MeshNegotiator maintains one peer link per present remote participant and
// drives the offer/answer/ICE exchange.
type MeshNegotiator interface {
	Start(ctx context.Context) error
	ToggleCamera(ctx context.Context) error
	ToggleMic(ctx context.Context) (bool, error)
	Recheck(ctx context.Context) error
	Links() []domain.LinkInfo
	Roster() []domain.Participant
	CameraOn() bool
	Close() error
}

// MeshMetrics records negotiation-level observability counters.
type MeshMetrics interface {
	LinkOpened()
	LinkClosed()
	OfferSent()
	AnswerSent()
	GlareDetected()
	OfferIgnored()
	CandidateBuffered()
	CandidatesFlushed(n int)
	RecheckPerformed()
	LinkStable(setup time.Duration)
}
