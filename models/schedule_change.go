package models

import "time"

type ScheduleChangeStatus string

const (
	ScheduleChangePending   ScheduleChangeStatus = "pending"
	ScheduleChangeAccepted  ScheduleChangeStatus = "accepted"
	ScheduleChangeRejected  ScheduleChangeStatus = "rejected"
	ScheduleChangeCancelled ScheduleChangeStatus = "cancelled"
)

type ScheduleChangeDecision string

const (
	DecisionAccept ScheduleChangeDecision = "accept"
	DecisionReject ScheduleChangeDecision = "reject"
)

func (d ScheduleChangeDecision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// ScheduleChangeRequest proposes moving a booking's start time. Once answered it
// stays as an audit record.
type ScheduleChangeRequest struct {
	ID                 string               `bson:"id" json:"id" gorm:"primaryKey;size:64"`
	OriginalScheduleID string               `bson:"original_schedule_id" json:"originalScheduleId" gorm:"index;size:64"`
	InitiatorID        string               `bson:"initiator_id" json:"initiatorId" gorm:"index;size:64"`
	CounterpartyID     string               `bson:"counterparty_id" json:"counterpartyId" gorm:"index;size:64"`
	OriginalDateTime   time.Time            `bson:"original_date_time" json:"originalDateTime"`
	ProposedDateTime   time.Time            `bson:"proposed_date_time" json:"proposedDateTime"`
	Reason             string               `bson:"reason" json:"reason"`
	ResponseNote       string               `bson:"response_note,omitempty" json:"responseNote,omitempty"`
	Status             ScheduleChangeStatus `bson:"status" json:"status" gorm:"index;size:16"`
	Version            int64                `bson:"version" json:"version"`
	CreatedAt          time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt          time.Time            `bson:"updated_at" json:"updatedAt"`
	RespondedAt        *time.Time           `bson:"responded_at,omitempty" json:"respondedAt,omitempty"`
}

// ScheduleChangeFilter selects schedule-change requests.
type ScheduleChangeFilter struct {
	BookingID      string
	InitiatorID    string
	CounterpartyID string
	Statuses       []ScheduleChangeStatus
}

func (ScheduleChangeRequest) TableName() string {
	return "schedule_changes"
}
