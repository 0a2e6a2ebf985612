package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/hackgods/calendar-scheduling/internal/calendar"
)

var (
	ErrCalendarNotFound    = errors.New("calendar not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// CalendarRepository loads calendars with working hours already decoded.
type CalendarRepository interface {
	GetWithWorkingHours(ctx context.Context, id int64) (*calendar.Calendar, error)
}

// BlockedDateRepository reports blocked dates and holidays, global or per calendar.
type BlockedDateRepository interface {
	IsDateBlocked(ctx context.Context, calendarID int64, date time.Time) (bool, error)
}

// Reader is the read side shared by the repository and its transactions.
type Reader interface {
	FindByID(ctx context.Context, id int64) (*Appointment, error)
	GetAppointmentsByDate(ctx context.Context, calendarID int64, date time.Time, statuses []AppointmentStatus) ([]Appointment, error)

	// IsSlotAvailable reports whether fewer than capacity active appointments
	// hold the slot. Inside a Tx it also serializes concurrent callers on the
	// same slot until the transaction ends.
	IsSlotAvailable(ctx context.Context, calendarID int64, date time.Time, start calendar.Clock, capacity int) (bool, error)

	// Identity lookups return appointments starting at or after from.
	FindByUserID(ctx context.Context, userID int64, from time.Time) ([]Appointment, error)
	FindByEmail(ctx context.Context, email string, from time.Time) ([]Appointment, error)
	FindByCPFRF(ctx context.Context, cpfRF string, from time.Time) ([]Appointment, error)
}

// Tx is a booking transaction. Exactly one of Commit or Rollback ends it.
type Tx interface {
	Reader
	CreateAppointment(ctx context.Context, a *Appointment) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository contains all appointment storage interactions needed by the service.
type Repository interface {
	Reader

	Begin(ctx context.Context) (Tx, error)

	// Cancel and Approve report false when the row was not in a state that
	// allows the transition.
	Cancel(ctx context.Context, id int64, byUserID *int64, reason string) (bool, error)
	Approve(ctx context.Context, id int64, byUserID *int64) (bool, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
