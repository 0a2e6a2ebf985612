package appointment

import (
	"strings"
	"time"

	"github.com/hackgods/calendar-scheduling/internal/calendar"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// ActiveStatuses are the statuses that hold a seat in a slot.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed}

func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Appointment struct {
	ID         int64
	CalendarID int64
	Date       time.Time // civil date, midnight in the configured location
	StartTime  calendar.Clock
	EndTime    calendar.Clock
	Status     AppointmentStatus

	UserID *int64
	Name   string
	Email  string
	Phone  string
	CPFRF  string
	UserIP string
	Notes  string

	ConfirmationToken string

	ApprovedAt         *time.Time
	ApprovedBy         *int64
	CancelledAt        *time.Time
	CancelledBy        *int64
	CancellationReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt is the absolute start of the appointment in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return a.StartTime.On(a.Date, loc)
}

func (a *Appointment) OwnedBy(userID int64) bool {
	return userID > 0 && a.UserID != nil && *a.UserID == userID
}

// Submission is a booking request as received from a booker.
type Submission struct {
	CalendarID   int64
	Date         string // YYYY-MM-DD
	Time         string // HH:MM or HH:MM:SS
	Name         string
	Email        string
	Phone        string
	CPFRF        string
	Notes        string
	UserIP       string
	ConsentGiven bool
}

func (s *Submission) normalize() {
	s.Date = strings.TrimSpace(s.Date)
	s.Time = strings.TrimSpace(s.Time)
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Phone = normalizePhone(s.Phone)
	s.CPFRF = strings.TrimSpace(s.CPFRF)
}

// BookingIdentity is how a booker is recognised across appointments, in
// order of preference: user id, then email, then document number.
type BookingIdentity struct {
	UserID int64
	Email  string
	CPFRF  string
}

func (id BookingIdentity) Matches(a *Appointment) bool {
	switch {
	case id.UserID > 0:
		return a.OwnedBy(id.UserID)
	case id.Email != "":
		return strings.EqualFold(a.Email, id.Email)
	case id.CPFRF != "":
		return documentDigits(a.CPFRF) == documentDigits(id.CPFRF)
	}
	return false
}

// BookingResult is returned to the booker after a successful submission.
type BookingResult struct {
	Success           bool   `json:"success"`
	RequiresApproval  bool   `json:"requires_approval"`
	AppointmentID     int64  `json:"appointment_id"`
	ConfirmationToken string `json:"confirmation_token"`
}

// AvailableSlot is one bookable start time with its remaining capacity.
type AvailableSlot struct {
	Time      string `json:"time"`
	Display   string `json:"display"`
	Available int    `json:"available"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}
