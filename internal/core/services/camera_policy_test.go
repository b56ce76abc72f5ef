package services

import (
	"testing"

	"debatemesh/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestCameraPolicyRejectsNonPublishingRoles(t *testing.T) {
	policy := NewCameraPolicy(2)

	for _, role := range []domain.Role{domain.RoleObserver, domain.RoleEvaluator} {
		err := policy.CanEnable(domain.Participant{ID: "p1", Role: role}, nil)
		assert.ErrorIs(t, err, domain.ErrRoleCannotPublish, "role %s", role)
	}
}

func TestCameraPolicyEnforcesLimit(t *testing.T) {
	policy := NewCameraPolicy(2)
	local := domain.Participant{ID: "carol", Role: domain.RoleFor}

	roster := []domain.Participant{
		{ID: "alice", Role: domain.RoleFor, CameraOn: true},
		{ID: "bob", Role: domain.RoleAgainst, CameraOn: true},
		{ID: "carol", Role: domain.RoleFor},
	}
	assert.ErrorIs(t, policy.CanEnable(local, roster), domain.ErrCameraLimitReached)

	roster[1].CameraOn = false
	assert.NoError(t, policy.CanEnable(local, roster))
}

func TestCameraPolicyIgnoresNonPublishingCameras(t *testing.T) {
	policy := NewCameraPolicy(2)
	local := domain.Participant{ID: "carol", Role: domain.RoleFor}

	// Stale camera flags on non-publishing roles never count toward the limit.
	roster := []domain.Participant{
		{ID: "olga", Role: domain.RoleObserver, CameraOn: true},
		{ID: "eve", Role: domain.RoleEvaluator, CameraOn: true},
		{ID: "alice", Role: domain.RoleFor, CameraOn: true},
	}
	assert.NoError(t, policy.CanEnable(local, roster))
}

func TestCameraPolicyIgnoresSelf(t *testing.T) {
	policy := NewCameraPolicy(1)
	local := domain.Participant{ID: "alice", Role: domain.RoleFor, CameraOn: true}

	roster := []domain.Participant{
		{ID: "alice", Role: domain.RoleFor, CameraOn: true},
	}
	assert.NoError(t, policy.CanEnable(local, roster))
}
