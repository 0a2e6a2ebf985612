package appointment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/hackgods/calendar-scheduling/internal/auth"
	"github.com/hackgods/calendar-scheduling/internal/calendar"
)

// Validator runs the booking rules in a fixed order and stops at the first
// failure. A nil error means the submission may be booked.
type Validator struct {
	blocked BlockedDateRepository
	loc     *time.Location
	now     func() time.Time
}

func NewValidator(blocked BlockedDateRepository, loc *time.Location, now func() time.Time) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{blocked: blocked, loc: loc, now: now}
}

func parseSlot(sub Submission, loc *time.Location) (time.Time, calendar.Clock, error) {
	date, err := calendar.ParseDate(sub.Date, loc)
	if err != nil {
		return time.Time{}, 0, ErrInvalidDate
	}
	start, err := calendar.ParseClock(sub.Time)
	if err != nil {
		return time.Time{}, 0, ErrInvalidTime
	}
	return date, start, nil
}

// Validate checks sub against cal. Capacity is always read through r, which
// during a booking is the open transaction.
func (v *Validator) Validate(ctx context.Context, r Reader, cal *calendar.Calendar, sub Submission, caller auth.Caller) error {
	if sub.Date == "" || sub.Time == "" || sub.Name == "" || sub.Email == "" {
		return ErrMissingFields
	}

	date, start, err := parseSlot(sub, v.loc)
	if err != nil {
		return err
	}

	if addr, err := mail.ParseAddress(sub.Email); err != nil || addr.Address != sub.Email {
		return ErrInvalidEmail
	}
	if sub.CPFRF == "" && cal.RequireDocument {
		return ErrCPFRFRequired
	}
	if sub.CPFRF != "" && !ValidDocument(sub.CPFRF) {
		return ErrInvalidCPFRF
	}

	if cal.IsPrivate() && !caller.Authenticated() && !caller.Bypass {
		return ErrLoginRequired
	}

	available, err := r.IsSlotAvailable(ctx, cal.ID, date, start, cal.Capacity())
	if err != nil {
		return fmt.Errorf("check slot availability: %w", err)
	}
	if !available {
		return ErrSlotFull
	}

	identity := BookingIdentity{UserID: caller.UserID, Email: sub.Email, CPFRF: sub.CPFRF}

	if cal.SlotsPerDay > 0 {
		sameDay, err := r.GetAppointmentsByDate(ctx, cal.ID, date, ActiveStatuses)
		if err != nil {
			return fmt.Errorf("load appointments for daily limit: %w", err)
		}
		count := 0
		for i := range sameDay {
			if identity.Matches(&sameDay[i]) {
				count++
			}
		}
		if count >= cal.SlotsPerDay {
			return ErrDailyLimit
		}
	}

	if caller.Bypass {
		return nil
	}

	if err := v.CheckBookingInterval(ctx, r, identity, cal.ID, cal.MinimumIntervalBetweenBookings); err != nil {
		return err
	}

	if !IsWithinWorkingHours(cal, date, start) {
		return ErrOutsideWorkingHours
	}

	if err := v.checkBookingWindow(cal, date, start); err != nil {
		return err
	}

	if v.blocked != nil {
		blocked, err := v.blocked.IsDateBlocked(ctx, cal.ID, date)
		if err != nil {
			return fmt.Errorf("check blocked date: %w", err)
		}
		if blocked {
			return ErrDateBlocked
		}
	}

	return nil
}

// CheckBookingInterval rejects a booker who already has an upcoming
// appointment on this calendar starting within minHours from now. Cancelled
// appointments and other calendars are ignored.
func (v *Validator) CheckBookingInterval(ctx context.Context, r Reader, id BookingIdentity, calendarID int64, minHours int) error {
	if minHours <= 0 {
		return nil
	}

	now := v.now()

	var (
		upcoming []Appointment
		err      error
	)
	switch {
	case id.UserID > 0:
		upcoming, err = r.FindByUserID(ctx, id.UserID, now)
	case id.Email != "":
		upcoming, err = r.FindByEmail(ctx, id.Email, now)
	case id.CPFRF != "":
		upcoming, err = r.FindByCPFRF(ctx, documentDigits(id.CPFRF), now)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("load upcoming appointments: %w", err)
	}

	limit := now.Add(time.Duration(minHours) * time.Hour)
	for i := range upcoming {
		a := &upcoming[i]
		if a.Status == StatusCancelled || a.CalendarID != calendarID {
			continue
		}
		startsAt := a.StartsAt(v.loc)
		if startsAt.Before(now) {
			continue
		}
		if startsAt.Before(limit) {
			return ErrBookingTooSoon
		}
	}

	return nil
}

// IsWithinWorkingHours reports whether start is one of the slots generated
// for date's windows. A calendar with no working hours, or a weekday that was
// never configured, only requires a whole-minute start.
func IsWithinWorkingHours(cal *calendar.Calendar, date time.Time, start calendar.Clock) bool {
	if cal.WorkingHours.IsEmpty() || !cal.WorkingHours.Configured(date.Weekday()) {
		return start.Second() == 0
	}

	for _, slot := range calendar.GenerateDaySlots(cal.WorkingHours.Resolve(date), cal.SlotDuration, cal.SlotInterval) {
		if slot.Start == start {
			return true
		}
	}
	return false
}

func (v *Validator) checkBookingWindow(cal *calendar.Calendar, date time.Time, start calendar.Clock) error {
	now := v.now()
	startsAt := start.On(date, v.loc)

	if startsAt.Before(now.Add(time.Duration(cal.AdvanceBookingMin) * time.Hour)) {
		return ErrOutsideBookingWindow
	}
	if cal.AdvanceBookingMax > 0 && startsAt.After(now.AddDate(0, 0, cal.AdvanceBookingMax)) {
		return ErrOutsideBookingWindow
	}
	return nil
}
