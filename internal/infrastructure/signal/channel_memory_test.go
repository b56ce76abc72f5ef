package signal

import (
	"context"
	"testing"

	"debatemesh/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoutesPointToPoint(t *testing.T) {
	hub := NewHub()
	alice := hub.Join("alice")
	bob := hub.Join("bob")
	carol := hub.Join("carol")

	var bobGot, carolGot []domain.SignalMessage
	bob.Channel().Subscribe(func(m domain.SignalMessage) { bobGot = append(bobGot, m) })
	carol.Channel().Subscribe(func(m domain.SignalMessage) { carolGot = append(carolGot, m) })

	require.NoError(t, alice.Channel().SendTo(context.Background(), "bob",
		domain.SignalMessage{Kind: domain.SignalVideoOffer}))
	hub.DrainAll()

	require.Len(t, bobGot, 1)
	assert.Equal(t, domain.ParticipantID("alice"), bobGot[0].From)
	assert.Equal(t, domain.ParticipantID("bob"), bobGot[0].To)
	assert.Empty(t, carolGot)
}

func TestHubBroadcastSkipsSender(t *testing.T) {
	hub := NewHub()
	alice := hub.Join("alice")
	bob := hub.Join("bob")

	var aliceGot, bobGot int
	alice.Channel().Subscribe(func(domain.SignalMessage) { aliceGot++ })
	bob.Channel().Subscribe(func(domain.SignalMessage) { bobGot++ })

	require.NoError(t, alice.Channel().Broadcast(context.Background(),
		domain.SignalMessage{Kind: domain.SignalCameraOff}))
	hub.DrainAll()

	assert.Zero(t, aliceGot)
	assert.Equal(t, 1, bobGot)
}

func TestHubPreservesPerSenderOrder(t *testing.T) {
	hub := NewHub()
	alice := hub.Join("alice")
	bob := hub.Join("bob")

	var kinds []domain.SignalKind
	bob.Channel().Subscribe(func(m domain.SignalMessage) { kinds = append(kinds, m.Kind) })

	ctx := context.Background()
	require.NoError(t, alice.Channel().SendTo(ctx, "bob", domain.SignalMessage{Kind: domain.SignalVideoOffer}))
	require.NoError(t, alice.Channel().SendTo(ctx, "bob", domain.SignalMessage{Kind: domain.SignalICECandidate}))
	require.NoError(t, alice.Channel().SendTo(ctx, "bob", domain.SignalMessage{Kind: domain.SignalICECandidate}))
	hub.DrainAll()

	assert.Equal(t, []domain.SignalKind{
		domain.SignalVideoOffer,
		domain.SignalICECandidate,
		domain.SignalICECandidate,
	}, kinds)
}

func TestHubDeliversQueuedNotDuringSend(t *testing.T) {
	hub := NewHub()
	alice := hub.Join("alice")
	bob := hub.Join("bob")

	delivered := false
	bob.Channel().Subscribe(func(domain.SignalMessage) { delivered = true })

	require.NoError(t, alice.Channel().SendTo(context.Background(), "bob",
		domain.SignalMessage{Kind: domain.SignalVideoOffer}))
	assert.False(t, delivered, "delivery must wait for Drain")

	bob.Drain()
	assert.True(t, delivered)
}

func TestHubDrainAllSettlesCascades(t *testing.T) {
	hub := NewHub()
	alice := hub.Join("alice")
	bob := hub.Join("bob")

	var aliceGot []domain.SignalKind
	alice.Channel().Subscribe(func(m domain.SignalMessage) { aliceGot = append(aliceGot, m.Kind) })

	// bob answers every offer, generating a second-generation message.
	bob.Channel().Subscribe(func(m domain.SignalMessage) {
		if m.Kind == domain.SignalVideoOffer {
			bob.Channel().SendTo(context.Background(), m.From,
				domain.SignalMessage{Kind: domain.SignalVideoAnswer})
		}
	})

	require.NoError(t, alice.Channel().SendTo(context.Background(), "bob",
		domain.SignalMessage{Kind: domain.SignalVideoOffer}))
	hub.DrainAll()

	assert.Equal(t, []domain.SignalKind{domain.SignalVideoAnswer}, aliceGot)
}

func TestHubPresenceRosterNotifications(t *testing.T) {
	hub := NewHub()
	alice := hub.Join("alice")
	bob := hub.Join("bob")

	var lastRoster []domain.Participant
	alice.Presence().Subscribe(func(roster []domain.Participant) { lastRoster = roster })

	ctx := context.Background()
	require.NoError(t, alice.Presence().Track(ctx, domain.Participant{ID: "alice", Role: domain.RoleFor}))
	require.NoError(t, bob.Presence().Track(ctx, domain.Participant{ID: "bob", Role: domain.RoleAgainst}))
	hub.DrainAll()

	require.Len(t, lastRoster, 2)
	assert.Equal(t, domain.ParticipantID("alice"), lastRoster[0].ID, "roster sorted by id")
	assert.Equal(t, domain.ParticipantID("bob"), lastRoster[1].ID)

	require.NoError(t, bob.Presence().Leave(ctx))
	hub.DrainAll()
	require.Len(t, lastRoster, 1)

	snapshot, err := alice.Presence().Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)
}
