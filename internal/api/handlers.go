package api

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/calendar-scheduling/internal/appointment"
	redisclient "github.com/hackgods/calendar-scheduling/internal/redis"
)

func listSlotsHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendarID, ok := int64Param(w, r, "id", "invalid_calendar_id")
		if !ok {
			return
		}

		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, appointment.CodeInvalidDate, "date query parameter is required")
			return
		}

		slots, err := svc.GetAvailableSlots(r.Context(), CallerFrom(r.Context()), calendarID, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, slots)
	}
}

func createAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := svc.ProcessAppointment(r.Context(), CallerFrom(r.Context()), req.submission(clientIP(r)))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, res)
	}
}

func getAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), CallerFrom(r.Context()), id, r.URL.Query().Get("token"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		// the body is optional for owners and administrators
		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Token == "" {
			req.Token = r.URL.Query().Get("token")
		}

		cancelled, err := svc.CancelAppointment(r.Context(), CallerFrom(r.Context()), id, req.Token, req.Reason)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelAppointmentResponse{Cancelled: cancelled})
	}
}

func approveAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		if err := svc.ApproveAppointment(r.Context(), CallerFrom(r.Context()), id); err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, ApproveAppointmentResponse{Approved: true})
	}
}

func int64Param(w http.ResponseWriter, r *http.Request, name, code string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, code, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// clientIP expects chi's RealIP middleware to have already rewritten
// RemoteAddr from the proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := appointment.CodeOf(err)
	if code == "" {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("http.internal_error")
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	status := statusForCode(code)
	if code == appointment.CodeCreationFailed {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			status = http.StatusConflict
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("http.creation_failed")
	}

	var appErr *appointment.Error
	errors.As(err, &appErr)
	writeError(w, status, code, appErr.Message)
}

func statusForCode(code string) int {
	switch code {
	case appointment.CodeInvalidCalendar, appointment.CodeNotFound:
		return http.StatusNotFound
	case appointment.CodeLoginRequired:
		return http.StatusUnauthorized
	case appointment.CodeUnauthorized:
		return http.StatusForbidden
	case appointment.CodeCalendarInactive,
		appointment.CodeSlotFull,
		appointment.CodeDailyLimit,
		appointment.CodeBookingTooSoon,
		appointment.CodeDateBlocked,
		appointment.CodeAlreadyCancelled,
		appointment.CodeAlreadyConfirmed,
		appointment.CodeCancellationNotAllowed,
		appointment.CodeCancellationWindowClosed:
		return http.StatusConflict
	case appointment.CodeCreationFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
