package domain

import "time"

// LinkState is the negotiation state of one peer link.
type LinkState int

const (
	LinkIdle LinkState = iota
	LinkHaveLocalOffer
	LinkStable
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkHaveLocalOffer:
		return "have-local-offer"
	case LinkStable:
		return "stable"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MediaKind distinguishes audio and video tracks.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// RemoteTrack describes one inbound media track surfaced by a peer link.
type RemoteTrack struct {
	ID       string    `json:"id"`
	StreamID string    `json:"stream_id"`
	Kind     MediaKind `json:"kind"`
}

// LinkInfo is a read-only snapshot of one peer link, used by the admin API
// and tests.
type LinkInfo struct {
	Remote            ParticipantID `json:"remote"`
	Polite            bool          `json:"polite"`
	State             LinkState     `json:"state"`
	MakingOffer       bool          `json:"making_offer"`
	IgnoreOffer       bool          `json:"ignore_offer"`
	BufferedCandidates int          `json:"buffered_candidates"`
	RemoteTracks      int           `json:"remote_tracks"`
	CreatedAt         time.Time     `json:"created_at"`
}
