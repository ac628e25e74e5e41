package models

import "time"

type PaymentAttemptStatus string

const (
	AttemptPending    PaymentAttemptStatus = "pending"
	AttemptProcessing PaymentAttemptStatus = "processing"
	AttemptCompleted  PaymentAttemptStatus = "completed"
	AttemptFailed     PaymentAttemptStatus = "failed"
)

// --- PaymentRequest & PaymentAttempt ---
type PaymentRequest struct {
	PayerID    string `json:"payerId"`
	ProviderID string `json:"providerId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// PaymentAttempt lives only inside the payment gate. It expires if abandoned.
type PaymentAttempt struct {
	ID                  string               `json:"id"`
	PayerID             string               `json:"payerId"`
	ProviderID          string               `json:"providerId,omitempty"`
	Amount              int64                `json:"amount"`
	Currency            string               `json:"currency"`
	Reference           string               `json:"reference"`
	Status              PaymentAttemptStatus `json:"status"`
	FailureReason       string               `json:"failureReason,omitempty"`
	Retries             int                  `json:"retries"`
	ConsumedBy          string               `json:"consumedBy,omitempty"`
	ProcessingStartedAt *time.Time           `json:"processingStartedAt,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
	ExpiresAt           time.Time            `json:"expiresAt"`
}

// PaymentAuthorization is the gate's verdict for a booking about to be persisted.
type PaymentAuthorization struct {
	Method    PaymentMethod
	Status    PaymentStatus
	AttemptID string
	Reference string
}
