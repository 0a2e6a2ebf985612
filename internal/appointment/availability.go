package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/calendar-scheduling/internal/auth"
	"github.com/hackgods/calendar-scheduling/internal/calendar"
)

// GetAvailableSlots answers what can be booked on a calendar on a date.
// Blocked dates, closed days and full slots are not errors: they only shrink
// the list. Only a bypass caller sees slots on blocked dates, or slots the
// booking window would reject.
func (s *Service) GetAvailableSlots(ctx context.Context, caller auth.Caller, calendarID int64, dateStr string) ([]AvailableSlot, error) {
	cal, err := s.loadActiveCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	date, err := calendar.ParseDate(dateStr, s.loc)
	if err != nil {
		return nil, ErrInvalidDate
	}

	if !caller.Bypass {
		blocked, err := s.blocked.IsDateBlocked(ctx, cal.ID, date)
		if err != nil {
			return nil, fmt.Errorf("check blocked date: %w", err)
		}
		if blocked {
			return []AvailableSlot{}, nil
		}
	}

	windows := cal.WorkingHours.Resolve(date)
	if len(windows) == 0 {
		return []AvailableSlot{}, nil
	}

	candidates := calendar.GenerateDaySlots(windows, cal.SlotDuration, cal.SlotInterval)
	if !caller.Bypass {
		candidates = s.insideBookingWindow(cal, date, candidates)
	}
	if len(candidates) == 0 {
		return []AvailableSlot{}, nil
	}

	booked, err := s.appts.GetAppointmentsByDate(ctx, cal.ID, date, ActiveStatuses)
	if err != nil {
		return nil, fmt.Errorf("load appointments for %s: %w", dateStr, err)
	}

	return computeAvailability(candidates, booked, cal.Capacity()), nil
}

// computeAvailability subtracts active bookings from each candidate's
// capacity and drops candidates with nothing left.
func computeAvailability(candidates []calendar.Slot, booked []Appointment, capacity int) []AvailableSlot {
	counts := make(map[calendar.Clock]int, len(booked))
	for _, a := range booked {
		if a.Status.Active() {
			counts[a.StartTime]++
		}
	}

	out := make([]AvailableSlot, 0, len(candidates))
	for _, c := range candidates {
		available := capacity - counts[c.Start]
		if available <= 0 {
			continue
		}
		out = append(out, AvailableSlot{
			Time:      c.Time(),
			Display:   c.Display(),
			Available: available,
		})
	}
	return out
}

func (s *Service) insideBookingWindow(cal *calendar.Calendar, date time.Time, candidates []calendar.Slot) []calendar.Slot {
	out := make([]calendar.Slot, 0, len(candidates))
	for _, c := range candidates {
		if s.validator.checkBookingWindow(cal, date, c.Start) == nil {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) loadActiveCalendar(ctx context.Context, id int64) (*calendar.Calendar, error) {
	cal, err := s.calendars.GetWithWorkingHours(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCalendarNotFound) {
			return nil, ErrInvalidCalendar
		}
		return nil, fmt.Errorf("load calendar %d: %w", id, err)
	}
	if !cal.IsActive() {
		return nil, ErrCalendarInactive
	}
	return cal, nil
}

// slotLockKey names the per-slot critical section. Unparseable input falls
// back to the raw strings; validation rejects it inside the lock anyway.
func slotLockKey(calendarID int64, sub Submission, loc *time.Location) string {
	date, start, err := parseSlot(sub, loc)
	if err != nil {
		return fmt.Sprintf("%d:%s:%s", calendarID, sub.Date, sub.Time)
	}
	return SlotKey(calendarID, date, start)
}

// SlotKey identifies one (calendar, date, start time) slot.
func SlotKey(calendarID int64, date time.Time, start calendar.Clock) string {
	return fmt.Sprintf("%d:%s:%s", calendarID, date.Format(calendar.DateLayout), start)
}
