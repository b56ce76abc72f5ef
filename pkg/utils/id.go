package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateParticipantID generates a unique participant ID.
func GenerateParticipantID() string {
	return GenerateID("user")
}

// GenerateSessionID generates a unique per-process session ID.
func GenerateSessionID() string {
	return GenerateID("session")
}

// GenerateID generates a random ID with prefix.
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
