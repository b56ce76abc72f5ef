// Package http exposes the local admin API: link and roster inspection plus
// the camera, mic and recheck controls.
package http

import (
	"errors"
	"net/http"
	"time"

	"debatemesh/internal/core/domain"
	"debatemesh/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AdminHandler struct {
	negotiator ports.MeshNegotiator
	local      domain.Participant
	roomID     string
	startedAt  time.Time
}

func NewAdminHandler(negotiator ports.MeshNegotiator, local domain.Participant, roomID string) *AdminHandler {
	return &AdminHandler{
		negotiator: negotiator,
		local:      local,
		roomID:     roomID,
		startedAt:  time.Now(),
	}
}

func (h *AdminHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/links", h.ListLinks)
		api.GET("/roster", h.GetRoster)
		api.POST("/camera/toggle", h.ToggleCamera)
		api.POST("/mic/toggle", h.ToggleMic)
		api.POST("/recheck", h.Recheck)
	}
}

func (h *AdminHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"room_id":        h.roomID,
		"participant_id": h.local.ID,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"links":          len(h.negotiator.Links()),
		"camera_on":      h.negotiator.CameraOn(),
	})
}

func (h *AdminHandler) ListLinks(c *gin.Context) {
	links := h.negotiator.Links()
	out := make([]gin.H, 0, len(links))
	for _, link := range links {
		out = append(out, gin.H{
			"remote":              link.Remote,
			"polite":              link.Polite,
			"state":               link.State.String(),
			"making_offer":        link.MakingOffer,
			"ignore_offer":        link.IgnoreOffer,
			"buffered_candidates": link.BufferedCandidates,
			"remote_tracks":       link.RemoteTracks,
			"created_at":          link.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"links": out})
}

func (h *AdminHandler) GetRoster(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"roster": h.negotiator.Roster()})
}

func (h *AdminHandler) ToggleCamera(c *gin.Context) {
	if err := h.negotiator.ToggleCamera(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, domain.ErrRoleCannotPublish):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrCameraLimitReached):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_on": h.negotiator.CameraOn()})
}

func (h *AdminHandler) ToggleMic(c *gin.Context) {
	micOn, err := h.negotiator.ToggleMic(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrMediaNotActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mic_on": micOn})
}

func (h *AdminHandler) Recheck(c *gin.Context) {
	if err := h.negotiator.Recheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": len(h.negotiator.Links())})
}
