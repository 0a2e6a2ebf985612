package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/calendar-scheduling/internal/calendar"
)

var ErrDuplicateAppointment = errors.New("appointment violates a unique constraint")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pgReader
	pool *pgxpool.Pool
}

// NewPgRepository stores dates and times as local wall-clock values in loc.
func NewPgRepository(pool *pgxpool.Pool, loc *time.Location) *PgRepository {
	return &PgRepository{
		pgReader: pgReader{q: pool, loc: loc},
		pool:     pool,
	}
}

type pgReader struct {
	q   querier
	loc *time.Location
	// slotLocking makes IsSlotAvailable take a transaction-scoped advisory
	// lock on the slot before counting.
	slotLocking bool
}

type pgTx struct {
	pgReader
	tx pgx.Tx
}

const appointmentColumns = `
	id, calendar_id, appointment_date, start_time, end_time, status,
	user_id, name, email, phone, cpf_rf, user_ip, notes, confirmation_token,
	approved_at, approved_by, cancelled_at, cancelled_by, cancellation_reason,
	created_at, updated_at`

// Helpers

func clockFromPg(t pgtype.Time) calendar.Clock {
	return calendar.Clock(t.Microseconds / 1_000_000)
}

func (r *pgReader) localDate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, r.loc)
}

func (r *pgReader) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, end pgtype.Time

	err := row.Scan(
		&a.ID,
		&a.CalendarID,
		&a.Date,
		&start,
		&end,
		&a.Status,
		&a.UserID,
		&a.Name,
		&a.Email,
		&a.Phone,
		&a.CPFRF,
		&a.UserIP,
		&a.Notes,
		&a.ConfirmationToken,
		&a.ApprovedAt,
		&a.ApprovedBy,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = r.localDate(a.Date)
	a.StartTime = clockFromPg(start)
	a.EndTime = clockFromPg(end)
	return &a, nil
}

func (r *pgReader) queryAppointments(ctx context.Context, sql string, args ...any) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// localTimestamp renders t as a wall-clock timestamp comparable with
// appointment_date + start_time.
func (r *pgReader) localTimestamp(t time.Time) string {
	return t.In(r.loc).Format("2006-01-02 15:04:05")
}

// Reader methods

func (r *pgReader) FindByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return r.scanAppointment(row)
}

func (r *pgReader) GetAppointmentsByDate(ctx context.Context, calendarID int64, date time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE calendar_id = $1
		  AND appointment_date = $2::date
		  AND status = ANY($3)
		ORDER BY start_time, id
	`, calendarID, date.Format(calendar.DateLayout), statusStrings(statuses))
}

func (r *pgReader) IsSlotAvailable(ctx context.Context, calendarID int64, date time.Time, start calendar.Clock, capacity int) (bool, error) {
	if r.slotLocking {
		// Held until commit or rollback; a second booking for the same slot
		// waits here and then counts the first one's committed row.
		if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, SlotKey(calendarID, date, start)); err != nil {
			return false, fmt.Errorf("lock slot: %w", err)
		}
	}

	var count int
	err := r.q.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE calendar_id = $1
		  AND appointment_date = $2::date
		  AND start_time = $3::time
		  AND status IN ('pending', 'confirmed')
	`, calendarID, date.Format(calendar.DateLayout), start.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count slot appointments: %w", err)
	}

	return count < capacity, nil
}

func (r *pgReader) FindByUserID(ctx context.Context, userID int64, from time.Time) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		  AND appointment_date + start_time >= $2::timestamp
		ORDER BY appointment_date, start_time
	`, userID, r.localTimestamp(from))
}

func (r *pgReader) FindByEmail(ctx context.Context, email string, from time.Time) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE lower(email) = lower($1)
		  AND appointment_date + start_time >= $2::timestamp
		ORDER BY appointment_date, start_time
	`, email, r.localTimestamp(from))
}

func (r *pgReader) FindByCPFRF(ctx context.Context, cpfRF string, from time.Time) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE cpf_rf = $1
		  AND appointment_date + start_time >= $2::timestamp
		ORDER BY appointment_date, start_time
	`, cpfRF, r.localTimestamp(from))
}

// Repository methods

func (r *PgRepository) Begin(ctx context.Context) (Tx, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &pgTx{
		pgReader: pgReader{q: tx, loc: r.loc, slotLocking: true},
		tx:       tx,
	}, nil
}

func (r *PgRepository) Cancel(ctx context.Context, id int64, byUserID *int64, reason string) (bool, error) {
	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_at = now(),
		    cancelled_by = $2,
		    cancellation_reason = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
	`, id, byUserID, reasonArg)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) Approve(ctx context.Context, id int64, byUserID *int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
		    approved_at = now(),
		    approved_by = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
	`, id, byUserID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// Tx methods

func (t *pgTx) CreateAppointment(ctx context.Context, a *Appointment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (
			calendar_id, appointment_date, start_time, end_time, status,
			user_id, name, email, phone, cpf_rf, user_ip, notes, confirmation_token,
			approved_at, created_at, updated_at
		)
		VALUES ($1, $2::date, $3::time, $4::time, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING id
	`,
		a.CalendarID,
		a.Date.Format(calendar.DateLayout),
		a.StartTime.String(),
		a.EndTime.String(),
		string(a.Status),
		a.UserID,
		a.Name,
		a.Email,
		a.Phone,
		a.CPFRF,
		a.UserIP,
		a.Notes,
		a.ConfirmationToken,
		a.ApprovedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateAppointment, pgErr.ConstraintName)
		}
		return 0, fmt.Errorf("insert appointment: %w", err)
	}
	return id, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
