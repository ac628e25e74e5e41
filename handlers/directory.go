package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	caregiverRepo "carelink/database/repository/caregiver"
	"carelink/middleware"
	"carelink/models"
	"carelink/services/apperrors"
	"carelink/services/booking"
	"carelink/services/notification"
	"carelink/services/schedulechange"

	"github.com/gin-gonic/gin"
)

// DirectoryHandler serves read-only projections of committed session state.
type DirectoryHandler struct {
	Lifecycle     booking.LifecycleService
	Negotiator    schedulechange.Negotiator
	Notifications notification.NotificationService
	Caregivers    caregiverRepo.CaregiverRepository
}

func NewDirectoryHandler(
	l booking.LifecycleService,
	n schedulechange.Negotiator,
	notifSvc notification.NotificationService,
	caregivers caregiverRepo.CaregiverRepository,
) *DirectoryHandler {
	return &DirectoryHandler{Lifecycle: l, Negotiator: n, Notifications: notifSvc, Caregivers: caregivers}
}

// parseStatuses accepts repeated and comma separated status values.
func parseStatuses(raw []string) ([]models.BookingStatus, error) {
	var out []models.BookingStatus
	for _, item := range raw {
		for _, s := range strings.Split(item, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			st := models.BookingStatus(s)
			if !st.Valid() {
				return nil, fmt.Errorf("unknown status %q", s)
			}
			out = append(out, st)
		}
	}
	return out, nil
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return n, nil
}

// ListBookings handles GET /api/directory/bookings.
func (h *DirectoryHandler) ListBookings(c *gin.Context) {
	statuses, err := parseStatuses(c.QueryArray("status"))
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.Lifecycle.ListBookings(c.Request.Context(), models.BookingFilter{
		RequesterID: c.Query("requesterId"),
		ProviderID:  c.Query("providerId"),
		Statuses:    statuses,
		Limit:       limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out})
}

// PendingScheduleChanges lists requests awaiting the caller's answer.
func (h *DirectoryHandler) PendingScheduleChanges(c *gin.Context) {
	out, err := h.Negotiator.ListPendingFor(c.Request.Context(), middleware.PartyID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduleChanges": out})
}

// Inbox handles GET /api/directory/notifications.
func (h *DirectoryHandler) Inbox(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.Notifications.Inbox(c.Request.Context(), middleware.PartyID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

func (h *DirectoryHandler) ListCaregivers(c *gin.Context) {
	out, err := h.Caregivers.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"caregivers": out})
}

func (h *DirectoryHandler) GetCaregiver(c *gin.Context) {
	cg, err := h.Caregivers.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, caregiverRepo.ErrNotFound) {
		respondError(c, apperrors.NotFound("caregiver %s not found", c.Param("id")))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cg)
}

// PutCaregiver handles PUT /api/directory/caregivers/:id. Rates are in minor units.
func (h *DirectoryHandler) PutCaregiver(c *gin.Context) {
	var cg models.Caregiver
	if err := c.ShouldBindJSON(&cg); err != nil {
		badRequest(c, err)
		return
	}
	cg.ID = c.Param("id")
	if cg.HourlyRate < 0 {
		respondError(c, apperrors.Validation("hourlyRate must not be negative"))
		return
	}
	for _, k := range cg.ServiceKinds {
		if k != models.ServiceHomeCare && k != models.ServiceVideoCall {
			respondError(c, apperrors.Validation("unknown service kind %q", k))
			return
		}
	}
	if err := h.Caregivers.Upsert(c.Request.Context(), &cg); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cg)
}
