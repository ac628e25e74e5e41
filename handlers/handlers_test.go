package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	caregiverRepo "carelink/database/repository/caregiver"
	sessionRepo "carelink/database/repository/session"
	"carelink/handlers"
	"carelink/middleware"
	"carelink/models"
	"carelink/routes"
	"carelink/services/booking"
	"carelink/services/controls"
	"carelink/services/events"
	"carelink/services/notification"
	"carelink/services/payment"
	"carelink/services/schedulechange"
	"carelink/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.Logger = zap.NewNop()
}

type apiClient struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	sessions := sessionRepo.NewMemorySessionRepo()
	caregivers := caregiverRepo.NewMemoryCaregiverRepo(models.Caregiver{
		ID:           "carer-1",
		Name:         "Lan",
		HourlyRate:   250000,
		Currency:     "VND",
		ServiceKinds: []models.ServiceKind{models.ServiceHomeCare, models.ServiceVideoCall},
		Active:       true,
	})
	gate := payment.NewPaymentGate(
		payment.NewMemoryAttemptStore(30*time.Minute, time.Now),
		payment.NewSimulatedProcessor(time.Millisecond),
		2*time.Second,
		30*time.Minute,
		nil,
	)
	notifSvc, err := notification.NewDefaultNotificationService(notification.NewMemoryInboxStore(), nil)
	if err != nil {
		t.Fatal(err)
	}
	publishers := events.Fanout{notifSvc}

	lifecycle := booking.NewLifecycleService(sessions, caregivers, gate, publishers, nil, nil)
	lifecycle.Currency = "VND"
	negotiator := schedulechange.NewNegotiator(sessions, publishers, nil, nil)

	hb := &handlers.HandlerBundle{
		Bookings:        handlers.NewBookingHandler(lifecycle),
		ScheduleChanges: handlers.NewScheduleChangeHandler(negotiator),
		Payments:        handlers.NewPaymentHandler(gate),
		Directory:       handlers.NewDirectoryHandler(lifecycle, negotiator, notifSvc, caregivers),
		Controls:        handlers.NewControlsHandler(controls.NewControlService(controls.NewMemoryHub(), sessions, nil)),
	}
	r := gin.New()
	r.Use(utils.ErrorHandler())
	routes.RegisterRoutes(r, hb, 1000, nil)
	return &apiClient{t: t, router: r}
}

func (a *apiClient) do(method, path, party string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if party != "" {
		req.Header.Set(middleware.PartyHeader, party)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code
}

func futureStart() time.Time {
	return time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)
}

func homeCareBooking(start time.Time, payment map[string]any) map[string]any {
	return map[string]any{
		"providerId":      "carer-1",
		"title":           "Afternoon visit",
		"scheduledStart":  start,
		"durationMinutes": 120,
		"service":         map[string]any{"kind": "home_care", "homeCare": map[string]any{"address": "12 Nguyen Hue"}},
		"payment":         payment,
	}
}

func (a *apiClient) createCashBooking(start time.Time) models.Booking {
	a.t.Helper()
	var b models.Booking
	if code := a.do(http.MethodPost, "/api/bookings", "seeker-1", homeCareBooking(start, map[string]any{"method": "cash"}), &b); code != http.StatusCreated {
		a.t.Fatalf("create booking: status %d", code)
	}
	return b
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t)

	var quote models.Quote
	code := api.do(http.MethodPost, "/api/quotes", "seeker-1", map[string]any{
		"providerId": "carer-1", "serviceKind": "home_care", "durationMinutes": 120,
	}, &quote)
	if code != http.StatusOK || quote.Price != 500000 {
		t.Fatalf("quote: %d %+v", code, quote)
	}

	b := api.createCashBooking(futureStart())
	if b.Status != models.BookingPending || b.Price != 500000 || b.PaymentStatus != models.PaymentUnpaid {
		t.Fatalf("unexpected booking: %+v", b)
	}

	var errBody utils.ErrorResponse
	if code := api.do(http.MethodPost, "/api/bookings/"+b.ID+"/confirm", "seeker-1", nil, &errBody); code != http.StatusConflict || errBody.Code != "invalidTransition" {
		t.Fatalf("requester cannot confirm: %d %+v", code, errBody)
	}

	var confirmed models.Booking
	if code := api.do(http.MethodPost, "/api/bookings/"+b.ID+"/confirm", "carer-1", nil, &confirmed); code != http.StatusOK || confirmed.Status != models.BookingConfirmed {
		t.Fatalf("confirm: %d %+v", code, confirmed)
	}

	var cancelled models.Booking
	if code := api.do(http.MethodPost, "/api/bookings/"+b.ID+"/cancel", "seeker-1", nil, &cancelled); code != http.StatusOK || cancelled.Status != models.BookingCancelled {
		t.Fatalf("cancel: %d %+v", code, cancelled)
	}
	if code := api.do(http.MethodPost, "/api/bookings/"+b.ID+"/start", "carer-1", nil, nil); code != http.StatusConflict {
		t.Fatalf("start after cancel: status %d", code)
	}

	var inbox struct {
		Notifications []models.Notification `json:"notifications"`
	}
	api.do(http.MethodGet, "/api/directory/notifications", "carer-1", nil, &inbox)
	if len(inbox.Notifications) != 2 {
		t.Fatalf("caregiver should be told about the request and the cancellation, got %d", len(inbox.Notifications))
	}
}

func TestErrorMapping(t *testing.T) {
	api := newAPI(t)

	cases := []struct {
		name   string
		method string
		path   string
		party  string
		body   any
		status int
		code   string
	}{
		{"missing party", http.MethodGet, "/api/bookings/x", "", nil, http.StatusBadRequest, "validationError"},
		{"unknown booking", http.MethodGet, "/api/bookings/nope", "seeker-1", nil, http.StatusNotFound, "notFound"},
		{"past start", http.MethodPost, "/api/bookings", "seeker-1",
			homeCareBooking(time.Now().Add(-time.Hour), map[string]any{"method": "cash"}), http.StatusBadRequest, "validationError"},
		{"unknown service kind", http.MethodPost, "/api/bookings", "seeker-1",
			map[string]any{"providerId": "carer-1", "service": map[string]any{"kind": "massage"}}, http.StatusBadRequest, "validationError"},
		{"qr without attempt", http.MethodPost, "/api/bookings", "seeker-1",
			homeCareBooking(futureStart(), map[string]any{"method": "qr"}), http.StatusPaymentRequired, "paymentRequired"},
		{"unknown caregiver", http.MethodPost, "/api/quotes", "seeker-1",
			map[string]any{"providerId": "ghost", "serviceKind": "home_care", "durationMinutes": 60}, http.StatusNotFound, "notFound"},
		{"bad status filter", http.MethodGet, "/api/directory/bookings?status=sleeping", "", nil, http.StatusBadRequest, "validationError"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body utils.ErrorResponse
			code := api.do(tc.method, tc.path, tc.party, tc.body, &body)
			if code != tc.status || body.Code != tc.code {
				t.Fatalf("got %d %+v, want %d %s", code, body, tc.status, tc.code)
			}
		})
	}
}

func TestQRBookingOverHTTP(t *testing.T) {
	api := newAPI(t)

	var attempt models.PaymentAttempt
	if code := api.do(http.MethodPost, "/api/payments/attempts", "seeker-1", map[string]any{
		"providerId": "carer-1", "amount": 500000, "currency": "VND",
	}, &attempt); code != http.StatusCreated {
		t.Fatalf("open attempt: status %d", code)
	}

	sel := map[string]any{"method": "qr", "attemptId": attempt.ID}
	if code := api.do(http.MethodPost, "/api/bookings", "seeker-1", homeCareBooking(futureStart(), sel), nil); code != http.StatusPaymentRequired {
		t.Fatalf("pending attempt must not fund a booking: status %d", code)
	}

	var settled models.PaymentAttempt
	if code := api.do(http.MethodPost, "/api/payments/attempts/"+attempt.ID+"/confirm", "seeker-1", nil, &settled); code != http.StatusOK || settled.Status != models.AttemptCompleted {
		t.Fatalf("confirm payment: %d %+v", code, settled)
	}

	var b models.Booking
	if code := api.do(http.MethodPost, "/api/bookings", "seeker-1", homeCareBooking(futureStart(), sel), &b); code != http.StatusCreated {
		t.Fatalf("create qr booking: status %d", code)
	}
	if b.PaymentStatus != models.PaymentPaid || b.PaymentAttemptID != attempt.ID {
		t.Fatalf("unexpected payment on booking: %+v", b)
	}

	if code := api.do(http.MethodDelete, "/api/payments/attempts/"+attempt.ID, "seeker-1", nil, nil); code != http.StatusConflict {
		t.Fatalf("completed attempt cannot be abandoned: status %d", code)
	}
}

func TestScheduleChangeOverHTTP(t *testing.T) {
	api := newAPI(t)
	start := futureStart()
	b := api.createCashBooking(start)
	api.do(http.MethodPost, "/api/bookings/"+b.ID+"/confirm", "carer-1", nil, nil)

	proposed := start.Add(24 * time.Hour)
	var req models.ScheduleChangeRequest
	code := api.do(http.MethodPost, "/api/bookings/"+b.ID+"/schedule-changes", "seeker-1",
		map[string]any{"proposedDateTime": proposed, "reason": "family visit"}, &req)
	if code != http.StatusCreated || req.Status != models.ScheduleChangePending {
		t.Fatalf("propose: %d %+v", code, req)
	}

	var errBody utils.ErrorResponse
	code = api.do(http.MethodPost, "/api/bookings/"+b.ID+"/schedule-changes", "carer-1",
		map[string]any{"proposedDateTime": proposed.Add(time.Hour), "reason": "clash"}, &errBody)
	if code != http.StatusConflict || errBody.Code != "conflict" {
		t.Fatalf("second proposal: %d %+v", code, errBody)
	}

	var pending struct {
		ScheduleChanges []models.ScheduleChangeRequest `json:"scheduleChanges"`
	}
	api.do(http.MethodGet, "/api/directory/schedule-changes/pending", "carer-1", nil, &pending)
	if len(pending.ScheduleChanges) != 1 || pending.ScheduleChanges[0].ID != req.ID {
		t.Fatalf("caregiver should see the pending request: %+v", pending)
	}

	var answered models.ScheduleChangeRequest
	code = api.do(http.MethodPost, "/api/schedule-changes/"+req.ID+"/respond", "carer-1",
		map[string]any{"decision": "accept"}, &answered)
	if code != http.StatusOK || answered.Status != models.ScheduleChangeAccepted {
		t.Fatalf("accept: %d %+v", code, answered)
	}

	var moved models.Booking
	api.do(http.MethodGet, "/api/bookings/"+b.ID, "seeker-1", nil, &moved)
	if !moved.ScheduledStart.Equal(proposed) || moved.Status != models.BookingConfirmed {
		t.Fatalf("booking should move and stay confirmed: %+v", moved)
	}
}

func TestControlsOverHTTP(t *testing.T) {
	api := newAPI(t)
	var b models.Booking
	body := map[string]any{
		"providerId":      "carer-1",
		"scheduledStart":  futureStart(),
		"durationMinutes": 60,
		"service":         map[string]any{"kind": "video_call"},
		"payment":         map[string]any{"method": "cash"},
	}
	if code := api.do(http.MethodPost, "/api/bookings", "seeker-1", body, &b); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	path := fmt.Sprintf("/api/sessions/%s/controls", b.ID)

	if code := api.do(http.MethodPost, path, "seeker-1", map[string]any{"field": "camera", "value": true, "seq": 1}, nil); code != http.StatusConflict {
		t.Fatalf("controls are closed before confirmation: status %d", code)
	}
	api.do(http.MethodPost, "/api/bookings/"+b.ID+"/confirm", "carer-1", nil, nil)

	var res struct {
		Applied bool `json:"applied"`
	}
	api.do(http.MethodPost, path, "seeker-1", map[string]any{"field": "camera", "value": true, "seq": 2}, &res)
	if !res.Applied {
		t.Fatal("first update should apply")
	}
	api.do(http.MethodPost, path, "seeker-1", map[string]any{"field": "camera", "value": false, "seq": 1}, &res)
	if res.Applied {
		t.Fatal("late update should be dropped")
	}

	var state models.ControlState
	api.do(http.MethodGet, path, "carer-1", nil, &state)
	if v := state.Parties["seeker-1"][models.ControlCamera]; !v.Value || v.Seq != 2 {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestCaregiverDirectory(t *testing.T) {
	api := newAPI(t)

	var cg models.Caregiver
	code := api.do(http.MethodPut, "/api/directory/caregivers/carer-2", "", map[string]any{
		"name": "Minh", "hourlyRate": 180000, "currency": "VND", "serviceKinds": []string{"video_call"}, "active": true,
	}, &cg)
	if code != http.StatusOK || cg.ID != "carer-2" {
		t.Fatalf("upsert: %d %+v", code, cg)
	}

	var list struct {
		Caregivers []models.Caregiver `json:"caregivers"`
	}
	api.do(http.MethodGet, "/api/directory/caregivers", "", nil, &list)
	if len(list.Caregivers) != 2 {
		t.Fatalf("expected 2 caregivers, got %d", len(list.Caregivers))
	}
	if code := api.do(http.MethodGet, "/api/directory/caregivers/ghost", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown caregiver: status %d", code)
	}
}
