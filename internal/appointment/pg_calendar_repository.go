package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/calendar-scheduling/internal/calendar"
)

type PgCalendarRepository struct {
	pool *pgxpool.Pool
}

func NewPgCalendarRepository(pool *pgxpool.Pool) *PgCalendarRepository {
	return &PgCalendarRepository{pool: pool}
}

func (r *PgCalendarRepository) GetWithWorkingHours(ctx context.Context, id int64) (*calendar.Calendar, error) {
	var c calendar.Calendar
	var workingHours []byte

	err := r.pool.QueryRow(ctx, `
		SELECT id, title, status, slot_duration, slot_interval, max_appointments_per_slot,
		       advance_booking_min, advance_booking_max, allow_cancellation, cancellation_min_hours,
		       requires_approval, visibility, scheduling_visibility, require_document,
		       working_hours, slots_per_day, minimum_interval_between_bookings,
		       created_at, updated_at
		FROM calendars
		WHERE id = $1
	`, id).Scan(
		&c.ID,
		&c.Title,
		&c.Status,
		&c.SlotDuration,
		&c.SlotInterval,
		&c.MaxAppointmentsPerSlot,
		&c.AdvanceBookingMin,
		&c.AdvanceBookingMax,
		&c.AllowCancellation,
		&c.CancellationMinHours,
		&c.RequiresApproval,
		&c.Visibility,
		&c.SchedulingVisibility,
		&c.RequireDocument,
		&workingHours,
		&c.SlotsPerDay,
		&c.MinimumIntervalBetweenBookings,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCalendarNotFound
		}
		return nil, err
	}

	if len(workingHours) > 0 {
		if err := json.Unmarshal(workingHours, &c.WorkingHours); err != nil {
			return nil, fmt.Errorf("decode working hours of calendar %d: %w", id, err)
		}
	}

	return &c, nil
}

// CreateCalendar inserts c and sets its ID.
func (r *PgCalendarRepository) CreateCalendar(ctx context.Context, c *calendar.Calendar) error {
	workingHours, err := json.Marshal(c.WorkingHours)
	if err != nil {
		return fmt.Errorf("encode working hours: %w", err)
	}

	return r.pool.QueryRow(ctx, `
		INSERT INTO calendars (
			title, status, slot_duration, slot_interval, max_appointments_per_slot,
			advance_booking_min, advance_booking_max, allow_cancellation, cancellation_min_hours,
			requires_approval, visibility, scheduling_visibility, require_document,
			working_hours, slots_per_day, minimum_interval_between_bookings
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15, $16)
		RETURNING id, created_at, updated_at
	`,
		c.Title,
		string(c.Status),
		c.SlotDuration,
		c.SlotInterval,
		c.MaxAppointmentsPerSlot,
		c.AdvanceBookingMin,
		c.AdvanceBookingMax,
		c.AllowCancellation,
		c.CancellationMinHours,
		c.RequiresApproval,
		string(c.Visibility),
		string(c.SchedulingVisibility),
		c.RequireDocument,
		string(workingHours),
		c.SlotsPerDay,
		c.MinimumIntervalBetweenBookings,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

type PgBlockedDateRepository struct {
	pool *pgxpool.Pool
}

func NewPgBlockedDateRepository(pool *pgxpool.Pool) *PgBlockedDateRepository {
	return &PgBlockedDateRepository{pool: pool}
}

// IsDateBlocked matches the calendar's own blocks and global ones. Recurring
// blocks match on month and day in any year.
func (r *PgBlockedDateRepository) IsDateBlocked(ctx context.Context, calendarID int64, date time.Time) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM blocked_dates
			WHERE (calendar_id = $1 OR calendar_id IS NULL)
			  AND (
			        blocked_date = $2::date
			     OR (recurring_yearly
			         AND EXTRACT(MONTH FROM blocked_date) = EXTRACT(MONTH FROM $2::date)
			         AND EXTRACT(DAY FROM blocked_date) = EXTRACT(DAY FROM $2::date))
			  )
		)
	`, calendarID, date.Format(calendar.DateLayout)).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("query blocked dates: %w", err)
	}
	return blocked, nil
}

// BlockDate adds a block. A nil calendarID blocks the date on every calendar.
func (r *PgBlockedDateRepository) BlockDate(ctx context.Context, calendarID *int64, date time.Time, recurringYearly bool, reason string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO blocked_dates (calendar_id, blocked_date, recurring_yearly, reason)
		VALUES ($1, $2::date, $3, $4)
	`, calendarID, date.Format(calendar.DateLayout), recurringYearly, reason)
	if err != nil {
		return fmt.Errorf("insert blocked date: %w", err)
	}
	return nil
}
