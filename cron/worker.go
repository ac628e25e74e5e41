package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carelink/config"
	sessionRepo "carelink/database/repository/session"
	"carelink/models"
	"carelink/services/notification"
	"carelink/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ReminderHandler delivers queued booking reminders.
type ReminderHandler struct {
	Repo          sessionRepo.SessionRepository
	Notifications notification.NotificationService
	Logger        *zap.Logger
}

func NewReminderHandler(repo sessionRepo.SessionRepository, notifSvc notification.NotificationService, logger *zap.Logger) *ReminderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderHandler{Repo: repo, Notifications: notifSvc, Logger: logger}
}

// ProcessTask skips reminders for bookings that are no longer confirmed or
// whose start moved since the task was queued.
func (h *ReminderHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p models.ReminderPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		h.Logger.Error("Invalid reminder payload", zap.Error(err))
		return fmt.Errorf("decode reminder payload: %v: %w", err, asynq.SkipRetry)
	}

	b, err := h.Repo.GetBooking(ctx, p.BookingID)
	if errors.Is(err, sessionRepo.ErrNotFound) {
		h.Logger.Warn("Reminder for unknown booking", zap.String("bookingID", p.BookingID))
		return nil
	}
	if err != nil {
		return err
	}

	if b.Status != models.BookingConfirmed {
		h.Logger.Info("Skipping reminder, booking not confirmed",
			zap.String("bookingID", b.ID),
			zap.String("status", string(b.Status)))
		return nil
	}
	if !b.ScheduledStart.Equal(p.ScheduledStart) {
		h.Logger.Info("Skipping reminder, booking was rescheduled",
			zap.String("bookingID", b.ID),
			zap.Time("queuedFor", p.ScheduledStart),
			zap.Time("scheduledStart", b.ScheduledStart))
		return nil
	}

	if err := h.Notifications.SendBookingReminder(ctx, b); err != nil {
		h.Logger.Error("Failed to send booking reminder", zap.String("bookingID", b.ID), zap.Error(err))
		return err
	}
	h.Logger.Info("Booking reminder sent", zap.String("bookingID", b.ID), zap.String("fireDate", p.FireDate))
	return nil
}

// StartReminderWorker starts the asynq server in the background. Call
// Shutdown on the returned server to stop it.
func StartReminderWorker(handler *ReminderHandler, logger *zap.Logger) (*asynq.Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisReminderQueueDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeBookingReminder, handler)

	const maxAttempts = 5
	var err error
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = srv.Start(mux); err == nil {
			logger.Info("Reminder worker started")
			return srv, nil
		}
		logger.Warn("Failed to start reminder worker",
			zap.Int("attempt", attempts),
			zap.Int("maxAttempts", maxAttempts),
			zap.Error(err))
		time.Sleep(time.Duration(attempts*2) * time.Second)
	}
	return nil, fmt.Errorf("reminder worker: %w", err)
}
