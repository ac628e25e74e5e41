package handlers

import (
	"net/http"
	"time"

	"carelink/middleware"
	"carelink/models"
	"carelink/services/schedulechange"

	"github.com/gin-gonic/gin"
)

type ScheduleChangeHandler struct {
	Negotiator schedulechange.Negotiator
}

func NewScheduleChangeHandler(n schedulechange.Negotiator) *ScheduleChangeHandler {
	return &ScheduleChangeHandler{Negotiator: n}
}

type proposeRequest struct {
	ProposedDateTime time.Time `json:"proposedDateTime"`
	Reason           string    `json:"reason"`
}

type respondRequest struct {
	Decision models.ScheduleChangeDecision `json:"decision" binding:"required"`
	Note     string                        `json:"note"`
}

// Propose handles POST /api/bookings/:id/schedule-changes.
func (h *ScheduleChangeHandler) Propose(c *gin.Context) {
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.Negotiator.Propose(c.Request.Context(), c.Param("id"), middleware.PartyID(c), req.ProposedDateTime, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// ListForBooking handles GET /api/bookings/:id/schedule-changes.
func (h *ScheduleChangeHandler) ListForBooking(c *gin.Context) {
	out, err := h.Negotiator.ListForBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduleChanges": out})
}

func (h *ScheduleChangeHandler) Get(c *gin.Context) {
	out, err := h.Negotiator.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *ScheduleChangeHandler) Respond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.Negotiator.Respond(c.Request.Context(), c.Param("id"), middleware.PartyID(c), req.Decision, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *ScheduleChangeHandler) Withdraw(c *gin.Context) {
	out, err := h.Negotiator.Withdraw(c.Request.Context(), c.Param("id"), middleware.PartyID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
