package handlers

import (
	"net/http"

	"carelink/middleware"
	"carelink/models"
	"carelink/services/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentHandler drives qr payment attempts ahead of booking creation.
type PaymentHandler struct {
	Gate payment.PaymentGate
}

func NewPaymentHandler(gate payment.PaymentGate) *PaymentHandler {
	return &PaymentHandler{Gate: gate}
}

type openAttemptRequest struct {
	ProviderID string `json:"providerId" binding:"required"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// OpenAttempt handles POST /api/payments/attempts. The caller is the payer.
func (h *PaymentHandler) OpenAttempt(c *gin.Context) {
	var req openAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	attempt, err := h.Gate.OpenAttempt(c.Request.Context(), models.PaymentRequest{
		PayerID:    middleware.PartyID(c),
		ProviderID: req.ProviderID,
		Amount:     req.Amount,
		Currency:   req.Currency,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	getLogger(c).Info("Payment attempt opened", zap.String("attemptID", attempt.ID))
	c.JSON(http.StatusCreated, attempt)
}

func (h *PaymentHandler) GetAttempt(c *gin.Context) {
	attempt, err := h.Gate.GetAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// ConfirmPayment blocks until the attempt settles or the processing timeout elapses.
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	attempt, err := h.Gate.ConfirmPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

func (h *PaymentHandler) RetryPayment(c *gin.Context) {
	attempt, err := h.Gate.RetryPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

func (h *PaymentHandler) AbandonAttempt(c *gin.Context) {
	if err := h.Gate.AbandonAttempt(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
