package services

import (
	"debatemesh/internal/core/domain"
)

// CameraPolicy decides whether the local participant may acquire the camera.
// Only the two debating sides may originate video, and at most maxOn cameras
// may be live in the room at once. Checked before local media acquisition.
type CameraPolicy struct {
	maxOn int
}

func NewCameraPolicy(maxOn int) *CameraPolicy {
	return &CameraPolicy{maxOn: maxOn}
}

// CanEnable returns nil when local may turn its camera on given the current
// roster, or a typed rejection reason.
func (p *CameraPolicy) CanEnable(local domain.Participant, roster []domain.Participant) error {
	if !local.Role.CanPublishVideo() {
		return domain.ErrRoleCannotPublish
	}

	active := 0
	for _, participant := range roster {
		if participant.ID == local.ID {
			continue
		}
		if participant.Role.CanPublishVideo() && participant.CameraOn {
			active++
		}
	}
	if active >= p.maxOn {
		return domain.ErrCameraLimitReached
	}
	return nil
}
