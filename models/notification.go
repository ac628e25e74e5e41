package models

import "time"

// Notification is an inbox entry for a care seeker or caregiver.
type Notification struct {
	ID        string         `json:"id"`
	PartyID   string         `json:"partyId"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Read      bool           `json:"read"`
}
