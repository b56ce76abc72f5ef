package domain

import "time"

// ParticipantID uniquely identifies a participant within a room.
type ParticipantID string

// Role is the debate-room role assigned to a participant. Only the two
// debating sides may originate video.
type Role string

const (
	RoleFor       Role = "FOR"
	RoleAgainst   Role = "AGAINST"
	RoleObserver  Role = "OBSERVER"
	RoleEvaluator Role = "EVALUATOR"
)

// CanPublishVideo reports whether this role is allowed to send video.
func (r Role) CanPublishVideo() bool {
	return r == RoleFor || r == RoleAgainst
}

// ParseRole maps a config/presence string onto a known role, defaulting to
// observer for anything unrecognized.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleFor, RoleAgainst, RoleObserver, RoleEvaluator:
		return Role(s)
	default:
		return RoleObserver
	}
}

// Participant is one entry in the room roster.
type Participant struct {
	ID       ParticipantID `json:"id"`
	Name     string        `json:"name"`
	Role     Role          `json:"role"`
	CameraOn bool          `json:"camera_on"`
	LastSeen time.Time     `json:"last_seen"`
}

// Polite reports whether the local side takes the polite role toward remote.
// The participant with the lexicographically larger id is polite; both sides
// compute the same assignment from the same pair of ids with no extra
// signaling round trip.
func Polite(local, remote ParticipantID) bool {
	return local > remote
}
