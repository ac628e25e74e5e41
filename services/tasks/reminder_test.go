package tasks

import (
	"encoding/json"
	"testing"
	"time"

	"carelink/models"
)

func TestReminderTaskIDChangesWithStart(t *testing.T) {
	start := time.Date(2030, 1, 10, 9, 0, 0, 0, time.UTC)
	a := ReminderTaskID("b1", start)
	if a != ReminderTaskID("b1", start) {
		t.Fatalf("task id must be stable for the same start")
	}
	if a == ReminderTaskID("b1", start.Add(time.Hour)) {
		t.Fatalf("task id must change when the start moves")
	}
}

func TestNewReminderTaskCarriesPayload(t *testing.T) {
	start := time.Date(2030, 1, 10, 9, 0, 0, 0, time.UTC)
	task, opts, err := NewReminderTask(models.ReminderPayload{BookingID: "b1", ScheduledStart: start}, start.Add(-time.Hour))
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TypeBookingReminder || len(opts) == 0 {
		t.Fatalf("unexpected task %q with %d options", task.Type(), len(opts))
	}
	var p models.ReminderPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.BookingID != "b1" || !p.ScheduledStart.Equal(start) {
		t.Fatalf("payload mismatch: %+v", p)
	}
}
