package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/calendar-scheduling/internal/auth"
	"github.com/hackgods/calendar-scheduling/internal/calendar"
	"github.com/hackgods/calendar-scheduling/internal/config"
	redisclient "github.com/hackgods/calendar-scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentApproved  = "APPOINTMENT_APPROVED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

type Service struct {
	calendars CalendarRepository
	appts     Repository
	blocked   BlockedDateRepository
	locker    redisclient.Locker
	validator *Validator
	loc       *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(
	calendars CalendarRepository,
	appts Repository,
	blocked BlockedDateRepository,
	locker redisclient.Locker,
	cfg config.Config,
	logger zerolog.Logger,
) *Service {
	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	return &Service{
		calendars: calendars,
		appts:     appts,
		blocked:   blocked,
		locker:    locker,
		validator: NewValidator(blocked, loc, now),
		loc:       loc,
		now:       now,
		log:       logger.With().Str("component", "appointment").Logger(),
	}
}

// WithClock replaces the service's notion of now. Used by tests to pin
// booking windows.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.validator.now = now
	return s
}

// ProcessAppointment books sub for caller. The capacity re-check and the
// insert happen in one transaction inside the slot lock; every failure after
// the transaction opens rolls it back before returning.
func (s *Service) ProcessAppointment(ctx context.Context, caller auth.Caller, sub Submission) (*BookingResult, error) {
	cal, err := s.loadActiveCalendar(ctx, sub.CalendarID)
	if err != nil {
		return nil, err
	}

	if !sub.ConsentGiven {
		return nil, ErrConsentRequired
	}

	sub.normalize()
	if sub.Email == "" && caller.Email != "" {
		sub.Email = caller.Email
	}

	var result *BookingResult
	err = s.locker.WithSlotLock(ctx, slotLockKey(cal.ID, sub, s.loc), func(lockCtx context.Context) error {
		res, err := s.book(lockCtx, caller, cal, sub)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.log.Warn().
				Int64("calendar_id", cal.ID).
				Str("date", sub.Date).
				Str("time", sub.Time).
				Msg("booking.lock_timeout")
			return nil, creationFailed(err)
		}
		if isBusinessError(err) {
			return nil, err
		}
		return nil, creationFailed(err)
	}

	return result, nil
}

func (s *Service) book(ctx context.Context, caller auth.Caller, cal *calendar.Calendar, sub Submission) (*BookingResult, error) {
	tx, err := s.appts.Begin(ctx)
	if err != nil {
		return nil, creationFailed(fmt.Errorf("begin transaction: %w", err))
	}

	if err := s.validator.Validate(ctx, tx, cal, sub, caller); err != nil {
		s.rollback(ctx, tx)
		if isBusinessError(err) {
			s.log.Info().
				Int64("calendar_id", cal.ID).
				Str("code", CodeOf(err)).
				Msg("booking.rejected")
			return nil, err
		}
		return nil, creationFailed(err)
	}

	date, start, _ := parseSlot(sub, s.loc)
	now := s.now()

	appt := &Appointment{
		CalendarID:        cal.ID,
		Date:              date,
		StartTime:         start,
		EndTime:           start.Add(time.Duration(cal.SlotDuration) * time.Minute),
		Status:            StatusConfirmed,
		Name:              sub.Name,
		Email:             sub.Email,
		Phone:             sub.Phone,
		CPFRF:             documentDigits(sub.CPFRF),
		UserIP:            sub.UserIP,
		Notes:             sub.Notes,
		ConfirmationToken: uuid.NewString(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if caller.Authenticated() {
		uid := caller.UserID
		appt.UserID = &uid
	}
	if cal.RequiresApproval {
		appt.Status = StatusPending
	} else {
		appt.ApprovedAt = &now
	}

	id, err := tx.CreateAppointment(ctx, appt)
	if err != nil {
		s.rollback(ctx, tx)
		s.log.Error().Err(err).Int64("calendar_id", cal.ID).Msg("booking.insert_failed")
		return nil, creationFailed(err)
	}

	if err := tx.Commit(ctx); err != nil {
		s.rollback(ctx, tx)
		s.log.Error().Err(err).Int64("calendar_id", cal.ID).Msg("booking.commit_failed")
		return nil, creationFailed(err)
	}

	created, err := s.appts.FindByID(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Int64("appointment_id", id).Msg("booking.refetch_failed")
		appt.ID = id
		created = appt
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"calendar_id": cal.ID,
		"date":        sub.Date,
		"start_time":  created.StartTime.String(),
		"status":      created.Status,
	})

	return &BookingResult{
		Success:           true,
		RequiresApproval:  created.Status == StatusPending,
		AppointmentID:     created.ID,
		ConfirmationToken: created.ConfirmationToken,
	}, nil
}

func (s *Service) rollback(ctx context.Context, tx Tx) {
	// a cancelled request context must not leave the transaction open
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := tx.Rollback(rbCtx); err != nil {
		s.log.Error().Err(err).Msg("booking.rollback_failed")
	}
}

// authorize lets through a bypass caller, the booking's owner, or anyone
// presenting its confirmation token.
func authorize(caller auth.Caller, appt *Appointment, token string) bool {
	if caller.Bypass {
		return true
	}
	if appt.OwnedBy(caller.UserID) {
		return true
	}
	return token != "" && appt.ConfirmationToken != "" && token == appt.ConfirmationToken
}

func (s *Service) loadAppointment(ctx context.Context, id int64) (*Appointment, error) {
	appt, err := s.appts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load appointment %d: %w", id, err)
	}
	return appt, nil
}

// GetAppointment returns an appointment to someone authorized to manage it.
func (s *Service) GetAppointment(ctx context.Context, caller auth.Caller, id int64, token string) (*Appointment, error) {
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authorize(caller, appt, token) {
		return nil, ErrUnauthorized
	}
	return appt, nil
}

// CancelAppointment cancels id. Authorization is decided before the current
// status is looked at, so an unauthorized caller learns nothing about it.
func (s *Service) CancelAppointment(ctx context.Context, caller auth.Caller, id int64, token, reason string) (bool, error) {
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return false, err
	}

	if !authorize(caller, appt, token) {
		return false, ErrUnauthorized
	}

	if appt.Status == StatusCancelled {
		return false, ErrAlreadyCancelled
	}

	if !caller.Bypass {
		cal, err := s.calendars.GetWithWorkingHours(ctx, appt.CalendarID)
		if err != nil {
			if errors.Is(err, ErrCalendarNotFound) {
				return false, ErrInvalidCalendar
			}
			return false, fmt.Errorf("load calendar %d: %w", appt.CalendarID, err)
		}
		if !cal.AllowCancellation {
			return false, ErrCancellationNotAllowed
		}
		deadline := appt.StartsAt(s.loc).Add(-time.Duration(cal.CancellationMinHours) * time.Hour)
		if s.now().After(deadline) {
			return false, ErrCancellationWindowClosed
		}
	}

	var by *int64
	if caller.Authenticated() {
		uid := caller.UserID
		by = &uid
	}

	ok, err := s.appts.Cancel(ctx, appt.ID, by, reason)
	if err != nil {
		return false, fmt.Errorf("cancel appointment %d: %w", appt.ID, err)
	}

	if ok {
		s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
			"reason": reason,
			"bypass": caller.Bypass,
		})
	}

	return ok, nil
}

// ApproveAppointment moves a pending appointment to confirmed. Only a bypass
// caller may approve.
func (s *Service) ApproveAppointment(ctx context.Context, caller auth.Caller, id int64) error {
	if !caller.Bypass {
		return ErrUnauthorized
	}

	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return err
	}

	switch appt.Status {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusConfirmed:
		return ErrAlreadyConfirmed
	}

	var by *int64
	if caller.Authenticated() {
		uid := caller.UserID
		by = &uid
	}

	ok, err := s.appts.Approve(ctx, appt.ID, by)
	if err != nil {
		return fmt.Errorf("approve appointment %d: %w", appt.ID, err)
	}
	if !ok {
		// lost a race with a concurrent cancel or approval
		current, err := s.loadAppointment(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		return ErrAlreadyConfirmed
	}

	s.logEvent(ctx, appt.ID, EventAppointmentApproved, map[string]any{})
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("event.marshal_failed")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.appts.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Int64("appointment_id", appointmentID).
			Msg("event.insert_failed")
	}
}
