package calendar

import (
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Calendar is a bookable schedule owned by an administrator.
// Durations are in minutes unless the field name says otherwise.
type Calendar struct {
	ID     int64
	Title  string
	Status Status

	SlotDuration           int
	SlotInterval           int
	MaxAppointmentsPerSlot int

	AdvanceBookingMin int // hours
	AdvanceBookingMax int // days, 0 = unlimited

	AllowCancellation    bool
	CancellationMinHours int

	RequiresApproval     bool
	Visibility           Visibility
	SchedulingVisibility Visibility
	RequireDocument      bool

	WorkingHours WorkingHours

	SlotsPerDay                    int // 0 = unlimited
	MinimumIntervalBetweenBookings int // hours

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Calendar) IsActive() bool {
	return c.Status == StatusActive
}

func (c *Calendar) IsPrivate() bool {
	return c.SchedulingVisibility == VisibilityPrivate
}

// Capacity is never below one even if the stored value is.
func (c *Calendar) Capacity() int {
	if c.MaxAppointmentsPerSlot < 1 {
		return 1
	}
	return c.MaxAppointmentsPerSlot
}

// Window is an open/close pair inside a single day.
type Window struct {
	Start Clock
	End   Clock
}
