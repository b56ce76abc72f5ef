package signal

import (
	"testing"
	"time"

	"debatemesh/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinTokenRoundTrip(t *testing.T) {
	tokens := NewTokenManager("test-secret", time.Minute)

	participant := domain.Participant{ID: "alice", Role: domain.RoleFor}
	signed, err := tokens.MintJoinToken("room-1", participant)
	require.NoError(t, err)

	claims, err := tokens.ValidateJoinToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "room-1", claims.RoomID)
	assert.Equal(t, domain.ParticipantID("alice"), claims.ParticipantID)
	assert.Equal(t, domain.RoleFor, claims.Role)
}

func TestJoinTokenRejectsWrongSecret(t *testing.T) {
	mint := NewTokenManager("secret-a", time.Minute)
	verify := NewTokenManager("secret-b", time.Minute)

	signed, err := mint.MintJoinToken("room-1", domain.Participant{ID: "alice"})
	require.NoError(t, err)

	_, err = verify.ValidateJoinToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJoinTokenExpires(t *testing.T) {
	tokens := NewTokenManager("test-secret", -time.Minute)

	signed, err := tokens.MintJoinToken("room-1", domain.Participant{ID: "alice"})
	require.NoError(t, err)

	_, err = tokens.ValidateJoinToken(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJoinTokenRejectsGarbage(t *testing.T) {
	tokens := NewTokenManager("test-secret", time.Minute)
	_, err := tokens.ValidateJoinToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
