package ports

import (
	"context"

	"debatemesh/internal/core/domain"
)

// SignalingChannel is the room-scoped publish/subscribe bus carrying
// negotiation messages. Per-sender ordering is assumed from the transport;
// the negotiation layer does not re-derive it.
type SignalingChannel interface {
	// SendTo delivers a point-to-point message to a specific participant.
	SendTo(ctx context.Context, to domain.ParticipantID, msg domain.SignalMessage) error

	// Broadcast delivers a message to every participant in the room,
	// including none if the room is otherwise empty.
	Broadcast(ctx context.Context, msg domain.SignalMessage) error

	// Subscribe registers a handler for inbound messages addressed to the
	// local participant (or broadcast). Returns a cancel function.
	Subscribe(fn func(domain.SignalMessage)) (cancel func())

	Close() error
}

// PresenceTracker supplies the current room roster and notifies on changes.
// The negotiation layer treats the roster as read-only input.
type PresenceTracker interface {
	// Track announces or refreshes the local participant's presence record.
	Track(ctx context.Context, p domain.Participant) error

	// Leave withdraws the local participant from the roster.
	Leave(ctx context.Context) error

	// Snapshot returns the current set of room participants.
	Snapshot(ctx context.Context) ([]domain.Participant, error)

	// Subscribe registers a handler invoked with the full roster on every
	// join, leave or attribute change. Returns a cancel function.
	Subscribe(fn func([]domain.Participant)) (cancel func())

	Close() error
}
