package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/calendar-scheduling/internal/appointment"
	"github.com/hackgods/calendar-scheduling/internal/auth"
	"github.com/hackgods/calendar-scheduling/internal/calendar"
)

type fakeScheduler struct {
	caller auth.Caller
	sub    appointment.Submission
	token  string
	reason string

	slots []appointment.AvailableSlot
	appt  *appointment.Appointment
	err   error
}

func (f *fakeScheduler) GetAvailableSlots(_ context.Context, caller auth.Caller, _ int64, _ string) ([]appointment.AvailableSlot, error) {
	f.caller = caller
	return f.slots, f.err
}

func (f *fakeScheduler) ProcessAppointment(_ context.Context, caller auth.Caller, sub appointment.Submission) (*appointment.BookingResult, error) {
	f.caller = caller
	f.sub = sub
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.BookingResult{Success: true, AppointmentID: 7, ConfirmationToken: "tok"}, nil
}

func (f *fakeScheduler) GetAppointment(_ context.Context, caller auth.Caller, _ int64, token string) (*appointment.Appointment, error) {
	f.caller = caller
	f.token = token
	return f.appt, f.err
}

func (f *fakeScheduler) CancelAppointment(_ context.Context, caller auth.Caller, _ int64, token, reason string) (bool, error) {
	f.caller = caller
	f.token = token
	f.reason = reason
	return f.err == nil, f.err
}

func (f *fakeScheduler) ApproveAppointment(_ context.Context, caller auth.Caller, _ int64) error {
	f.caller = caller
	return f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestRouter(s *fakeScheduler) http.Handler {
	return NewRouter(RouterConfig{
		Scheduler: s,
		Authz:     auth.NewAdminList([]int64{1}),
		Postgres:  fakePinger{},
		Redis:     fakePinger{},
		Logger:    zerolog.Nop(),
		Env:       "test",
	})
}

func do(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestListSlots(t *testing.T) {
	s := &fakeScheduler{slots: []appointment.AvailableSlot{{Time: "09:00:00", Display: "09:00", Available: 2}}}
	h := newTestRouter(s)

	rec := do(t, h, http.MethodGet, "/calendars/3/slots?date=2026-10-19", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var got []appointment.AvailableSlot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Available != 2 {
		t.Fatalf("unexpected slots %+v", got)
	}
	if s.caller.Authenticated() {
		t.Fatalf("expected anonymous caller")
	}
}

func TestListSlots_BadInput(t *testing.T) {
	h := newTestRouter(&fakeScheduler{})

	if rec := do(t, h, http.MethodGet, "/calendars/abc/slots?date=2026-10-19", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/calendars/3/slots", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without date, got %d", rec.Code)
	}
}

func TestCreateAppointment(t *testing.T) {
	s := &fakeScheduler{}
	h := newTestRouter(s)

	body := `{"calendar_id":3,"date":"2026-10-19","time":"09:00","name":"Ana","email":"ana@example.com","cpf_rf":"1234567","consent":true}`
	rec := do(t, h, http.MethodPost, "/appointments", body, map[string]string{
		HeaderUserID:      "1",
		HeaderUserEmail:   "admin@example.com",
		"X-Forwarded-For": "203.0.113.9",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var res appointment.BookingResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.AppointmentID != 7 {
		t.Fatalf("unexpected result %+v", res)
	}

	if s.sub.CalendarID != 3 || s.sub.CPFRF != "1234567" || !s.sub.ConsentGiven {
		t.Fatalf("submission not mapped: %+v", s.sub)
	}
	if s.sub.UserIP != "203.0.113.9" {
		t.Fatalf("expected forwarded client ip, got %q", s.sub.UserIP)
	}
	if s.caller.UserID != 1 || !s.caller.Bypass || s.caller.Email != "admin@example.com" {
		t.Fatalf("expected bypass admin caller, got %+v", s.caller)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestCreateAppointment_MalformedBody(t *testing.T) {
	rec := do(t, newTestRouter(&fakeScheduler{}), http.MethodPost, "/appointments", "{", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec).Error; got != "invalid_request_body" {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestIdentityHeaders(t *testing.T) {
	cases := []struct {
		name       string
		userID     string
		wantUser   int64
		wantBypass bool
	}{
		{"admin", "1", 1, true},
		{"regular user", "42", 42, false},
		{"malformed id", "abc", 0, false},
		{"negative id", "-5", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeScheduler{}
			do(t, newTestRouter(s), http.MethodGet, "/calendars/3/slots?date=2026-10-19", "", map[string]string{
				HeaderUserID: tc.userID,
			})
			if s.caller.UserID != tc.wantUser || s.caller.Bypass != tc.wantBypass {
				t.Fatalf("expected user %d bypass %v, got %+v", tc.wantUser, tc.wantBypass, s.caller)
			}
		})
	}
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{appointment.ErrSlotFull, http.StatusConflict, "slot_full"},
		{appointment.ErrInvalidCalendar, http.StatusNotFound, "invalid_calendar"},
		{appointment.ErrMissingFields, http.StatusBadRequest, "missing_fields"},
		{appointment.ErrLoginRequired, http.StatusUnauthorized, "login_required"},
		{appointment.ErrCreationFailed, http.StatusInternalServerError, "creation_failed"},
		{fmt.Errorf("load calendar 3: %w", errors.New("db down")), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.wantCode, func(t *testing.T) {
			h := newTestRouter(&fakeScheduler{err: tc.err})
			rec := do(t, h, http.MethodPost, "/appointments", `{"calendar_id":3}`, nil)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, resp.Error)
			}
			if tc.wantCode == "internal_error" && resp.Details != "" {
				t.Fatalf("internal errors must not leak details, got %q", resp.Details)
			}
		})
	}
}

func TestGetAppointment(t *testing.T) {
	appt := &appointment.Appointment{
		ID:         5,
		CalendarID: 3,
		Date:       time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		StartTime:  calendar.NewClock(9, 0, 0),
		EndTime:    calendar.NewClock(9, 30, 0),
		Status:     appointment.StatusPending,
		Name:       "Ana",
		Email:      "ana@example.com",
	}
	s := &fakeScheduler{appt: appt}

	rec := do(t, newTestRouter(s), http.MethodGet, "/appointments/5?token=abc", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if s.token != "abc" {
		t.Fatalf("expected token to be passed, got %q", s.token)
	}

	var got AppointmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Date != "2026-10-19" || got.StartTime != "09:00:00" || got.Status != "pending" {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestCancelAppointment(t *testing.T) {
	s := &fakeScheduler{}
	h := newTestRouter(s)

	rec := do(t, h, http.MethodPost, "/appointments/5/cancel", `{"token":"abc","reason":"travel"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var got CancelAppointmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Cancelled || s.token != "abc" || s.reason != "travel" {
		t.Fatalf("unexpected cancel %+v token=%q reason=%q", got, s.token, s.reason)
	}

	// empty body with token in the query string
	rec = do(t, h, http.MethodPost, "/appointments/5/cancel?token=xyz", "", nil)
	if rec.Code != http.StatusOK || s.token != "xyz" {
		t.Fatalf("expected query token, got %d token=%q", rec.Code, s.token)
	}

	s.err = appointment.ErrUnauthorized
	rec = do(t, h, http.MethodPost, "/appointments/5/cancel", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestApproveAppointment(t *testing.T) {
	s := &fakeScheduler{}
	rec := do(t, newTestRouter(s), http.MethodPost, "/appointments/5/approve", "", map[string]string{HeaderUserID: "1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if !s.caller.Bypass {
		t.Fatalf("expected bypass caller")
	}

	s.err = appointment.ErrAlreadyConfirmed
	rec = do(t, newTestRouter(s), http.MethodPost, "/appointments/5/approve", "", map[string]string{HeaderUserID: "1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeScheduler{})
	if rec := do(t, h, http.MethodGet, "/health/live", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("liveness: expected 200, got %d", rec.Code)
	}

	cases := []struct {
		name       string
		pg, redis  error
		wantStatus int
		want       string
	}{
		{"all up", nil, nil, http.StatusOK, "ok"},
		{"redis down", nil, errors.New("refused"), http.StatusOK, "degraded"},
		{"postgres down", errors.New("refused"), nil, http.StatusServiceUnavailable, "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{
				Scheduler: &fakeScheduler{},
				Postgres:  fakePinger{err: tc.pg},
				Redis:     fakePinger{err: tc.redis},
				Logger:    zerolog.Nop(),
			})
			rec := do(t, h, http.MethodGet, "/health/ready", "", nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, resp.Status)
			}
		})
	}
}

func TestHealth_ReadyWithLocalLocks(t *testing.T) {
	h := NewRouter(RouterConfig{
		Scheduler: &fakeScheduler{},
		Postgres:  fakePinger{},
		Logger:    zerolog.Nop(),
	})

	rec := do(t, h, http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Dependencies["redis"] != "disabled" {
		t.Fatalf("expected ok with redis disabled, got %+v", resp)
	}
}
