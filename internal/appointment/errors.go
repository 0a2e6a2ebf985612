package appointment

import (
	"errors"
)

// Stable error codes returned to callers.
const (
	CodeInvalidCalendar          = "invalid_calendar"
	CodeCalendarInactive         = "calendar_inactive"
	CodeConsentRequired          = "consent_required"
	CodeMissingFields            = "missing_fields"
	CodeInvalidDate              = "invalid_date"
	CodeInvalidTime              = "invalid_time"
	CodeInvalidEmail             = "invalid_email"
	CodeCPFRFRequired            = "cpf_rf_required"
	CodeInvalidCPFRF             = "invalid_cpf_rf"
	CodeLoginRequired            = "login_required"
	CodeSlotFull                 = "slot_full"
	CodeDailyLimit               = "daily_limit"
	CodeBookingTooSoon           = "booking_too_soon"
	CodeOutsideWorkingHours      = "outside_working_hours"
	CodeOutsideBookingWindow     = "outside_booking_window"
	CodeDateBlocked              = "date_blocked"
	CodeCreationFailed           = "creation_failed"
	CodeNotFound                 = "not_found"
	CodeAlreadyCancelled         = "already_cancelled"
	CodeAlreadyConfirmed         = "already_confirmed"
	CodeUnauthorized             = "unauthorized"
	CodeCancellationNotAllowed   = "cancellation_not_allowed"
	CodeCancellationWindowClosed = "cancellation_window_closed"
)

// Error is an expected business outcome: a stable code plus a default
// English message. Err optionally carries the storage failure behind it.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrSlotFull)
// holds for copies carrying a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrInvalidCalendar          = newError(CodeInvalidCalendar, "calendar does not exist")
	ErrCalendarInactive         = newError(CodeCalendarInactive, "calendar is not accepting bookings")
	ErrConsentRequired          = newError(CodeConsentRequired, "consent is required to book")
	ErrMissingFields            = newError(CodeMissingFields, "required fields are missing")
	ErrInvalidDate              = newError(CodeInvalidDate, "date must be a valid YYYY-MM-DD date")
	ErrInvalidTime              = newError(CodeInvalidTime, "time must be HH:MM or HH:MM:SS")
	ErrInvalidEmail             = newError(CodeInvalidEmail, "email address is not valid")
	ErrCPFRFRequired            = newError(CodeCPFRFRequired, "a CPF or RF document number is required")
	ErrInvalidCPFRF             = newError(CodeInvalidCPFRF, "document must be a valid CPF (11 digits) or RF (7 digits)")
	ErrLoginRequired            = newError(CodeLoginRequired, "you must be logged in to book on this calendar")
	ErrSlotFull                 = newError(CodeSlotFull, "this time slot is no longer available")
	ErrDailyLimit               = newError(CodeDailyLimit, "daily booking limit reached for this calendar")
	ErrBookingTooSoon           = newError(CodeBookingTooSoon, "you already have an appointment too close to now")
	ErrOutsideWorkingHours      = newError(CodeOutsideWorkingHours, "time is outside the calendar's working hours")
	ErrOutsideBookingWindow     = newError(CodeOutsideBookingWindow, "date is outside the allowed booking window")
	ErrDateBlocked              = newError(CodeDateBlocked, "bookings are not accepted on this date")
	ErrCreationFailed           = newError(CodeCreationFailed, "appointment could not be created")
	ErrNotFound                 = newError(CodeNotFound, "appointment not found")
	ErrAlreadyCancelled         = newError(CodeAlreadyCancelled, "appointment is already cancelled")
	ErrAlreadyConfirmed         = newError(CodeAlreadyConfirmed, "appointment is already confirmed")
	ErrUnauthorized             = newError(CodeUnauthorized, "not allowed to act on this appointment")
	ErrCancellationNotAllowed   = newError(CodeCancellationNotAllowed, "this calendar does not allow cancellation")
	ErrCancellationWindowClosed = newError(CodeCancellationWindowClosed, "too late to cancel this appointment")
)

// creationFailed keeps the underlying cause for logs while presenting the
// creation_failed code to callers.
func creationFailed(cause error) error {
	return &Error{Code: CodeCreationFailed, Message: ErrCreationFailed.Message, Err: cause}
}

// CodeOf returns the code of a business error, or "" for anything else.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func isBusinessError(err error) bool {
	return CodeOf(err) != ""
}
