package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carelink/models"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeBookingReminder = "booking:reminder"

// ReminderScheduler queues a reminder for a booking's current start time.
type ReminderScheduler interface {
	ScheduleBookingReminder(ctx context.Context, booking *models.Booking) error
}

// NoopReminderScheduler is used when reminders are disabled.
type NoopReminderScheduler struct{}

func (NoopReminderScheduler) ScheduleBookingReminder(context.Context, *models.Booking) error {
	return nil
}

// ReminderTaskID is unique per booking and start time, so re-scheduling the
// same start is a no-op and a moved start gets its own task.
func ReminderTaskID(bookingID string, start time.Time) string {
	return fmt.Sprintf("%s:%d", bookingID, start.Unix())
}

func NewReminderTask(payload models.ReminderPayload, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeBookingReminder, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID(ReminderTaskID(payload.BookingID, payload.ScheduledStart)),
		asynq.MaxRetry(3),
	}

	return task, opts, nil
}

// AsynqReminderScheduler enqueues reminders LeadTime before the start.
type AsynqReminderScheduler struct {
	Client   *asynq.Client
	LeadTime time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewAsynqReminderScheduler(client *asynq.Client, leadTime time.Duration, logger *zap.Logger) *AsynqReminderScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsynqReminderScheduler{Client: client, LeadTime: leadTime, Logger: logger, Now: time.Now}
}

func (s *AsynqReminderScheduler) ScheduleBookingReminder(ctx context.Context, booking *models.Booking) error {
	now := s.Now()
	if !booking.ScheduledStart.After(now) {
		return nil
	}
	fireAt := booking.ScheduledStart.Add(-s.LeadTime)
	if fireAt.Before(now) {
		fireAt = now
	}

	payload := models.ReminderPayload{
		BookingID:      booking.ID,
		ScheduledStart: booking.ScheduledStart,
		FireDate:       fireAt.UTC().Format(time.RFC3339),
	}
	task, opts, err := NewReminderTask(payload, fireAt)
	if err != nil {
		return err
	}

	info, err := s.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.Logger.Debug("Reminder already queued", zap.String("bookingID", booking.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue reminder for booking %s: %w", booking.ID, err)
	}
	s.Logger.Info("Reminder queued",
		zap.String("bookingID", booking.ID),
		zap.String("taskID", info.ID),
		zap.Time("fireAt", fireAt))
	return nil
}
