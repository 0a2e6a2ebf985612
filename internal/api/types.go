package api

import (
	"time"

	"github.com/hackgods/calendar-scheduling/internal/appointment"
	"github.com/hackgods/calendar-scheduling/internal/calendar"
)

type CreateAppointmentRequest struct {
	CalendarID int64  `json:"calendar_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	CPFRF      string `json:"cpf_rf"`
	Notes      string `json:"notes"`
	Consent    bool   `json:"consent"`
}

func (req CreateAppointmentRequest) submission(userIP string) appointment.Submission {
	return appointment.Submission{
		CalendarID:   req.CalendarID,
		Date:         req.Date,
		Time:         req.Time,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		CPFRF:        req.CPFRF,
		Notes:        req.Notes,
		UserIP:       userIP,
		ConsentGiven: req.Consent,
	}
}

type CancelAppointmentRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

type CancelAppointmentResponse struct {
	Cancelled bool `json:"cancelled"`
}

type ApproveAppointmentResponse struct {
	Approved bool `json:"approved"`
}

type AppointmentResponse struct {
	ID                 int64      `json:"id"`
	CalendarID         int64      `json:"calendar_id"`
	Date               string     `json:"date"`
	StartTime          string     `json:"start_time"`
	EndTime            string     `json:"end_time"`
	Status             string     `json:"status"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func newAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		CalendarID:         a.CalendarID,
		Date:               a.Date.Format(calendar.DateLayout),
		StartTime:          a.StartTime.String(),
		EndTime:            a.EndTime.String(),
		Status:             string(a.Status),
		Name:               a.Name,
		Email:              a.Email,
		Phone:              a.Phone,
		Notes:              a.Notes,
		ApprovedAt:         a.ApprovedAt,
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
