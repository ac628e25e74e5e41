package handlers

import (
	"io"
	"net/http"
	"time"

	"carelink/middleware"
	"carelink/models"
	"carelink/services/controls"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// keepAliveInterval keeps idle event streams open through proxies.
const keepAliveInterval = 25 * time.Second

type ControlsHandler struct {
	Controls controls.ControlService
}

func NewControlsHandler(svc controls.ControlService) *ControlsHandler {
	return &ControlsHandler{Controls: svc}
}

type controlUpdateRequest struct {
	Field models.ControlField `json:"field" binding:"required"`
	Value bool                `json:"value"`
	Seq   uint64              `json:"seq"`
}

// Apply handles POST /api/sessions/:id/controls. Stale updates answer 200
// with applied=false.
func (h *ControlsHandler) Apply(c *gin.Context) {
	var req controlUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	applied, err := h.Controls.Apply(c.Request.Context(), models.ControlUpdate{
		SessionID: c.Param("id"),
		PartyID:   middleware.PartyID(c),
		Field:     req.Field,
		Value:     req.Value,
		Seq:       req.Seq,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

func (h *ControlsHandler) State(c *gin.Context) {
	state, err := h.Controls.State(c.Request.Context(), c.Param("id"), middleware.PartyID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Stream handles GET /api/sessions/:id/controls/stream as server-sent events.
// The current state is sent first, then every accepted update.
func (h *ControlsHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID, party := c.Param("id"), middleware.PartyID(c)

	updates, err := h.Controls.Subscribe(ctx, sessionID, party)
	if err != nil {
		respondError(c, err)
		return
	}
	state, err := h.Controls.State(ctx, sessionID, party)
	if err != nil {
		respondError(c, err)
		return
	}

	getLogger(c).Info("Control stream opened", zap.String("sessionID", sessionID))
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("state", state)
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case u, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("control", u)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		}
	})
	getLogger(c).Info("Control stream closed", zap.String("sessionID", sessionID))
}
