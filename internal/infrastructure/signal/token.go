package signal

import (
	"errors"
	"time"

	"debatemesh/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// JoinClaims carry the room membership a signaling relay verifies before
// admitting a participant.
type JoinClaims struct {
	RoomID        string               `json:"room_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Role          domain.Role          `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager mints and validates room join tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// MintJoinToken creates a signed join token for one participant in one room.
func (m *TokenManager) MintJoinToken(roomID string, participant domain.Participant) (string, error) {
	claims := &JoinClaims{
		RoomID:        roomID,
		ParticipantID: participant.ID,
		Role:          participant.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateJoinToken verifies the signature and expiry and returns the claims.
func (m *TokenManager) ValidateJoinToken(tokenString string) (*JoinClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*JoinClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
