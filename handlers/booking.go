package handlers

import (
	"net/http"
	"time"

	"carelink/middleware"
	"carelink/models"
	"carelink/services/booking"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BookingHandler exposes the booking lifecycle. The acting party comes from
// middleware.RequireParty.
type BookingHandler struct {
	Lifecycle booking.LifecycleService
}

func NewBookingHandler(lifecycle booking.LifecycleService) *BookingHandler {
	return &BookingHandler{Lifecycle: lifecycle}
}

type createBookingRequest struct {
	ProviderID      string                  `json:"providerId" binding:"required"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	ScheduledStart  time.Time               `json:"scheduledStart"`
	DurationMinutes int                     `json:"durationMinutes"`
	Service         models.ServiceEnvelope  `json:"service"`
	Payment         models.PaymentSelection `json:"payment"`
}

type quoteRequest struct {
	ProviderID      string             `json:"providerId" binding:"required"`
	ServiceKind     models.ServiceKind `json:"serviceKind" binding:"required"`
	DurationMinutes int                `json:"durationMinutes"`
}

// CreateBooking handles POST /api/bookings. The caller is the requester.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	details := models.BookingDetails{
		Title:           req.Title,
		Description:     req.Description,
		ScheduledStart:  req.ScheduledStart,
		DurationMinutes: req.DurationMinutes,
		Service:         req.Service.Details,
	}
	b, err := h.Lifecycle.CreateBooking(c.Request.Context(), middleware.PartyID(c), req.ProviderID, details, req.Payment)
	if err != nil {
		respondError(c, err)
		return
	}
	getLogger(c).Info("Booking created", zap.String("bookingID", b.ID))
	c.JSON(http.StatusCreated, b)
}

// Quote handles POST /api/quotes.
func (h *BookingHandler) Quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	q, err := h.Lifecycle.Quote(c.Request.Context(), req.ProviderID, req.ServiceKind, req.DurationMinutes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	b, err := h.Lifecycle.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) Confirm(c *gin.Context) {
	h.transition(c, func(id, party string) (*models.Booking, error) {
		return h.Lifecycle.Confirm(c.Request.Context(), id, party)
	})
}

func (h *BookingHandler) Reject(c *gin.Context) {
	h.transition(c, func(id, party string) (*models.Booking, error) {
		return h.Lifecycle.Reject(c.Request.Context(), id, party)
	})
}

func (h *BookingHandler) Start(c *gin.Context) {
	h.transition(c, func(id, _ string) (*models.Booking, error) {
		return h.Lifecycle.Start(c.Request.Context(), id)
	})
}

func (h *BookingHandler) Complete(c *gin.Context) {
	h.transition(c, func(id, _ string) (*models.Booking, error) {
		return h.Lifecycle.Complete(c.Request.Context(), id)
	})
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	h.transition(c, func(id, party string) (*models.Booking, error) {
		return h.Lifecycle.Cancel(c.Request.Context(), id, party)
	})
}

func (h *BookingHandler) transition(c *gin.Context, fn func(id, party string) (*models.Booking, error)) {
	b, err := fn(c.Param("id"), middleware.PartyID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	getLogger(c).Info("Booking transitioned", zap.String("bookingID", b.ID), zap.String("status", string(b.Status)))
	c.JSON(http.StatusOK, b)
}
