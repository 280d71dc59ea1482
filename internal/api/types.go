// Package api holds the request and response bodies shared by the attendance
// HTTP server and its clients.
package api

import (
	"time"

	"seminar-attendance/internal/attendance"
)

// ScanRequest carries the text decoded from a QR code.
type ScanRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// ManualRequest is the manual entry form.
type ManualRequest struct {
	SeminarID        string `json:"seminar_id" binding:"required"`
	ParticipantEmail string `json:"participant_email" binding:"required"`
}

// ResolveResponse reports the outcome of one scan or manual entry.
type ResolveResponse struct {
	Status           attendance.Status `json:"status"`
	At               *time.Time        `json:"at,omitempty"`
	SeminarID        string            `json:"seminar_id,omitempty"`
	ParticipantEmail string            `json:"participant_email,omitempty"`
	Changed          bool              `json:"changed"`
	Message          string            `json:"message"`
	Error            string            `json:"error,omitempty"`
}
