package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/calendar-scheduling/internal/auth"
	"github.com/hackgods/calendar-scheduling/internal/calendar"
	"github.com/hackgods/calendar-scheduling/internal/config"
	redisclient "github.com/hackgods/calendar-scheduling/internal/redis"
)

// Friday 2026-10-16 08:00 UTC.
var testNow = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

const (
	testMonday = "2026-10-19"
	testSunday = "2026-10-18"
)

func fixedNow() time.Time { return testNow }

func clockAt(h, m int) calendar.Clock { return calendar.NewClock(h, m, 0) }

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := calendar.ParseDate(s, time.UTC)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

// testCalendar is open Monday 09:00-12:00 in 30 minute slots, one seat each.
func testCalendar() *calendar.Calendar {
	return &calendar.Calendar{
		ID:                     1,
		Title:                  "General practice",
		Status:                 calendar.StatusActive,
		SlotDuration:           30,
		MaxAppointmentsPerSlot: 1,
		AllowCancellation:      true,
		Visibility:             calendar.VisibilityPublic,
		SchedulingVisibility:   calendar.VisibilityPublic,
		WorkingHours: calendar.WorkingHours{
			time.Monday: {{Start: clockAt(9, 0), End: clockAt(12, 0)}},
		},
	}
}

func testSubmission() Submission {
	return Submission{
		CalendarID:   1,
		Date:         testMonday,
		Time:         "09:00",
		Name:         "Ana Souza",
		Email:        "ana@example.com",
		Phone:        "+55 11 99999-0000",
		UserIP:       "10.0.0.7",
		ConsentGiven: true,
	}
}

func bypassCaller() auth.Caller {
	return auth.Caller{Identity: auth.Identity{UserID: 1, Email: "admin@example.com"}, Bypass: true}
}

func userCaller(id int64) auth.Caller {
	return auth.Caller{Identity: auth.Identity{UserID: id, Email: "user@example.com"}}
}

// ---- calendars ----

type fakeCalendars map[int64]*calendar.Calendar

func (f fakeCalendars) GetWithWorkingHours(_ context.Context, id int64) (*calendar.Calendar, error) {
	c, ok := f[id]
	if !ok {
		return nil, ErrCalendarNotFound
	}
	cp := *c
	return &cp, nil
}

// ---- blocked dates ----

type fakeBlocked struct {
	dates map[string]bool
	err   error
}

func (f *fakeBlocked) IsDateBlocked(_ context.Context, _ int64, date time.Time) (bool, error) {
	if f == nil {
		return false, nil
	}
	if f.err != nil {
		return false, f.err
	}
	return f.dates[date.Format(calendar.DateLayout)], nil
}

// ---- appointments ----

// memStore keeps appointments in memory. An open transaction holds txMu
// until it ends, so bookings on the store are serialized the same way the
// advisory lock serializes them in Postgres.
type memStore struct {
	txMu sync.Mutex

	mu     sync.Mutex
	appts  []Appointment
	events []EventLog
	nextID int64

	begins, commits, rollbacks, creates int

	beginErr  error
	createErr error
	commitErr error
}

func newMemStore(existing ...Appointment) *memStore {
	s := &memStore{}
	for _, a := range existing {
		s.nextID++
		if a.ID == 0 {
			a.ID = s.nextID
		}
		if a.ConfirmationToken == "" {
			a.ConfirmationToken = "token-" + a.Date.Format(calendar.DateLayout) + "-" + a.StartTime.String()
		}
		s.appts = append(s.appts, a)
	}
	return s
}

func booked(date time.Time, start calendar.Clock, status AppointmentStatus) Appointment {
	return Appointment{
		CalendarID: 1,
		Date:       date,
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		Status:     status,
		Name:       "Someone",
		Email:      "someone@example.com",
	}
}

func (s *memStore) snapshot() []Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Appointment, len(s.appts))
	copy(out, s.appts)
	return out
}

func (s *memStore) counters() (begins, commits, rollbacks, creates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins, s.commits, s.rollbacks, s.creates
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *memStore) FindByID(_ context.Context, id int64) (*Appointment, error) {
	return findByID(s.snapshot(), id)
}

func (s *memStore) GetAppointmentsByDate(_ context.Context, calendarID int64, date time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	return byDate(s.snapshot(), calendarID, date, statuses), nil
}

func (s *memStore) IsSlotAvailable(_ context.Context, calendarID int64, date time.Time, start calendar.Clock, capacity int) (bool, error) {
	return slotAvailable(s.snapshot(), calendarID, date, start, capacity), nil
}

func (s *memStore) FindByUserID(_ context.Context, userID int64, from time.Time) ([]Appointment, error) {
	return upcoming(s.snapshot(), from, func(a *Appointment) bool { return a.OwnedBy(userID) }), nil
}

func (s *memStore) FindByEmail(_ context.Context, email string, from time.Time) ([]Appointment, error) {
	return upcoming(s.snapshot(), from, func(a *Appointment) bool { return strings.EqualFold(a.Email, email) }), nil
}

func (s *memStore) FindByCPFRF(_ context.Context, cpfRF string, from time.Time) ([]Appointment, error) {
	return upcoming(s.snapshot(), from, func(a *Appointment) bool { return a.CPFRF == cpfRF }), nil
}

func (s *memStore) Begin(_ context.Context) (Tx, error) {
	s.mu.Lock()
	s.begins++
	err := s.beginErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.txMu.Lock()
	return &memTx{store: s}, nil
}

func (s *memStore) Cancel(_ context.Context, id int64, byUserID *int64, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.appts {
		a := &s.appts[i]
		if a.ID != id {
			continue
		}
		if a.Status == StatusCancelled {
			return false, nil
		}
		now := testNow
		a.Status = StatusCancelled
		a.CancelledAt = &now
		a.CancelledBy = byUserID
		if reason != "" {
			a.CancellationReason = &reason
		}
		return true, nil
	}
	return false, nil
}

func (s *memStore) Approve(_ context.Context, id int64, byUserID *int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.appts {
		a := &s.appts[i]
		if a.ID != id || a.Status != StatusPending {
			continue
		}
		now := testNow
		a.Status = StatusConfirmed
		a.ApprovedAt = &now
		a.ApprovedBy = byUserID
		return true, nil
	}
	return false, nil
}

func (s *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type memTx struct {
	store   *memStore
	pending []Appointment
	done    bool
}

func (t *memTx) view() []Appointment {
	return append(t.store.snapshot(), t.pending...)
}

func (t *memTx) FindByID(_ context.Context, id int64) (*Appointment, error) {
	return findByID(t.view(), id)
}

func (t *memTx) GetAppointmentsByDate(_ context.Context, calendarID int64, date time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	return byDate(t.view(), calendarID, date, statuses), nil
}

func (t *memTx) IsSlotAvailable(_ context.Context, calendarID int64, date time.Time, start calendar.Clock, capacity int) (bool, error) {
	return slotAvailable(t.view(), calendarID, date, start, capacity), nil
}

func (t *memTx) FindByUserID(_ context.Context, userID int64, from time.Time) ([]Appointment, error) {
	return upcoming(t.view(), from, func(a *Appointment) bool { return a.OwnedBy(userID) }), nil
}

func (t *memTx) FindByEmail(_ context.Context, email string, from time.Time) ([]Appointment, error) {
	return upcoming(t.view(), from, func(a *Appointment) bool { return strings.EqualFold(a.Email, email) }), nil
}

func (t *memTx) FindByCPFRF(_ context.Context, cpfRF string, from time.Time) ([]Appointment, error) {
	return upcoming(t.view(), from, func(a *Appointment) bool { return a.CPFRF == cpfRF }), nil
}

func (t *memTx) CreateAppointment(_ context.Context, a *Appointment) (int64, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.nextID++
	row := *a
	row.ID = s.nextID
	t.pending = append(t.pending, row)
	return row.ID, nil
}

func (t *memTx) Commit(_ context.Context) error {
	s := t.store
	if t.done {
		return errors.New("transaction already closed")
	}
	s.mu.Lock()
	s.commits++
	if err := s.commitErr; err != nil {
		s.mu.Unlock()
		return err
	}
	s.appts = append(s.appts, t.pending...)
	s.mu.Unlock()

	t.done = true
	s.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	s := t.store
	s.mu.Lock()
	s.rollbacks++
	s.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.pending = nil
	s.txMu.Unlock()
	return nil
}

func findByID(all []Appointment, id int64) (*Appointment, error) {
	for i := range all {
		if all[i].ID == id {
			a := all[i]
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func byDate(all []Appointment, calendarID int64, date time.Time, statuses []AppointmentStatus) []Appointment {
	var out []Appointment
	for _, a := range all {
		if a.CalendarID != calendarID || !sameDay(a.Date, date) {
			continue
		}
		for _, st := range statuses {
			if a.Status == st {
				out = append(out, a)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func slotAvailable(all []Appointment, calendarID int64, date time.Time, start calendar.Clock, capacity int) bool {
	count := 0
	for _, a := range all {
		if a.CalendarID == calendarID && sameDay(a.Date, date) && a.StartTime == start && a.Status.Active() {
			count++
		}
	}
	return count < capacity
}

func upcoming(all []Appointment, from time.Time, match func(*Appointment) bool) []Appointment {
	var out []Appointment
	for i := range all {
		a := &all[i]
		if match(a) && !a.StartsAt(time.UTC).Before(from) {
			out = append(out, *a)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ---- lockers ----

type noopLocker struct{}

func (noopLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// ---- service ----

func newTestService(cal *calendar.Calendar, store *memStore, blocked *fakeBlocked, locker redisclient.Locker) *Service {
	if locker == nil {
		locker = redisclient.NewLocalLocker()
	}
	cals := fakeCalendars{}
	if cal != nil {
		cals[cal.ID] = cal
	}
	var br BlockedDateRepository = blocked
	if blocked == nil {
		br = &fakeBlocked{}
	}
	svc := NewService(cals, store, br, locker, config.Config{Timezone: "UTC"}, zerolog.Nop())
	return svc.WithClock(fixedNow)
}
