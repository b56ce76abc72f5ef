package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"debatemesh/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNegotiator struct {
	links     []domain.LinkInfo
	roster    []domain.Participant
	cameraOn  bool
	micOn     bool
	toggleErr error
	micErr    error
	rechecks  int
}

func (s *stubNegotiator) Start(context.Context) error { return nil }

func (s *stubNegotiator) ToggleCamera(context.Context) error {
	if s.toggleErr != nil {
		return s.toggleErr
	}
	s.cameraOn = !s.cameraOn
	return nil
}

func (s *stubNegotiator) ToggleMic(context.Context) (bool, error) {
	if s.micErr != nil {
		return false, s.micErr
	}
	s.micOn = !s.micOn
	return s.micOn, nil
}

func (s *stubNegotiator) Recheck(context.Context) error {
	s.rechecks++
	return nil
}

func (s *stubNegotiator) Links() []domain.LinkInfo     { return s.links }
func (s *stubNegotiator) Roster() []domain.Participant { return s.roster }
func (s *stubNegotiator) CameraOn() bool               { return s.cameraOn }
func (s *stubNegotiator) Close() error                 { return nil }

func setupRouter(stub *stubNegotiator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewAdminHandler(stub, domain.Participant{ID: "alice", Role: domain.RoleFor}, "room-1")
	handler.SetupRoutes(router)
	return router
}

func TestHealthEndpoint(t *testing.T) {
	stub := &stubNegotiator{links: []domain.LinkInfo{{Remote: "bob"}}}
	router := setupRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "room-1", body["room_id"])
	assert.Equal(t, float64(1), body["links"])
}

func TestListLinks(t *testing.T) {
	stub := &stubNegotiator{links: []domain.LinkInfo{
		{Remote: "bob", Polite: true, State: domain.LinkStable, RemoteTracks: 2},
	}}
	router := setupRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/links", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Links []map[string]interface{} `json:"links"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Links, 1)
	assert.Equal(t, "bob", body.Links[0]["remote"])
	assert.Equal(t, "stable", body.Links[0]["state"])
	assert.Equal(t, true, body.Links[0]["polite"])
}

func TestToggleCameraMapsPolicyErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"role rejected", domain.ErrRoleCannotPublish, http.StatusForbidden},
		{"limit reached", domain.ErrCameraLimitReached, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupRouter(&stubNegotiator{toggleErr: tc.err})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/camera/toggle", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestToggleCameraSuccess(t *testing.T) {
	stub := &stubNegotiator{}
	router := setupRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/camera/toggle", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.cameraOn)
}

func TestToggleMicWithoutMedia(t *testing.T) {
	router := setupRouter(&stubNegotiator{micErr: domain.ErrMediaNotActive})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mic/toggle", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRecheckEndpoint(t *testing.T) {
	stub := &stubNegotiator{}
	router := setupRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recheck", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, stub.rechecks)
}
