package domain

import "github.com/pion/webrtc/v3"

// SignalKind names the negotiation messages exchanged over the room channel.
type SignalKind string

const (
	SignalVideoOffer   SignalKind = "video-offer"
	SignalVideoAnswer  SignalKind = "video-answer"
	SignalICECandidate SignalKind = "ice-candidate"
	SignalCameraOff    SignalKind = "camera-off"
)

// SignalMessage is one negotiation message on the wire. Offers, answers and
// candidates are point-to-point (To set); camera-off is a room broadcast
// (To empty). Messages are transient and never persisted.
type SignalMessage struct {
	Kind      SignalKind                 `json:"kind"`
	From      ParticipantID              `json:"from"`
	To        ParticipantID              `json:"to,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// PeerEventKind names the events a peer connection surfaces upward.
type PeerEventKind int

const (
	PeerEventCandidate PeerEventKind = iota
	PeerEventRemoteTrack
	PeerEventICEStateChange
)

// PeerEvent is emitted by a peer connection wrapper toward the negotiation
// layer.
type PeerEvent struct {
	Kind      PeerEventKind
	Candidate *webrtc.ICECandidateInit
	Track     *RemoteTrack
	ICEState  webrtc.ICEConnectionState
}

// MediaEventKind names local media device lifecycle events.
type MediaEventKind int

const (
	MediaEventStarted MediaEventKind = iota
	MediaEventStopped
	MediaEventToggled
)

// MediaEvent is emitted by the local media device.
type MediaEvent struct {
	Kind    MediaEventKind
	Toggled MediaKind // set for MediaEventToggled
	Enabled bool      // new enablement state for MediaEventToggled
}
