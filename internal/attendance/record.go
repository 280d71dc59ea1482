package attendance

import (
	"context"
	"errors"
	"time"

	"seminar-attendance/internal/payload"
)

var (
	// ErrStore wraps any failure reported by a Store.
	ErrStore = errors.New("attendance store error")
	// ErrNotCheckedIn is returned by RecordTimeOut for a key without a time-in.
	ErrNotCheckedIn = errors.New("participant has not checked in")
)

// Stage is the position of a record in its AWAITING_IN -> AWAITING_OUT -> DONE lifecycle.
type Stage int

const (
	StageAwaitingIn Stage = iota
	StageAwaitingOut
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingIn:
		return "AWAITING_IN"
	case StageAwaitingOut:
		return "AWAITING_OUT"
	case StageDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// Record is the persisted time-in/time-out pair for one identity.
type Record struct {
	ID               string     `json:"id"`
	SeminarID        string     `json:"seminar_id"`
	ParticipantEmail string     `json:"participant_email"`
	TimeIn           *time.Time `json:"time_in,omitempty"`
	TimeOut          *time.Time `json:"time_out,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Identity returns the key the record is stored under.
func (r Record) Identity() payload.Identity {
	return payload.Identity{SeminarID: r.SeminarID, ParticipantEmail: r.ParticipantEmail}
}

// Stage derives the lifecycle stage from the presence of the timestamps.
func (r Record) Stage() Stage {
	switch {
	case r.TimeIn == nil:
		return StageAwaitingIn
	case r.TimeOut == nil:
		return StageAwaitingOut
	default:
		return StageDone
	}
}

// Transition is the outcome of one conditional store write. Applied is false
// when the write was an idempotent no-op and Record is the existing row.
type Transition struct {
	Record  Record
	Applied bool
}

// Store is the persistence contract the resolver depends on. Implementations
// must serialize writes per key so concurrent calls never create two rows.
type Store interface {
	// RecordTimeIn creates the record or sets time_in to at when it is absent.
	RecordTimeIn(ctx context.Context, id payload.Identity, at time.Time) (Transition, error)
	// RecordTimeOut sets time_out to at when time_in is present and time_out absent.
	RecordTimeOut(ctx context.Context, id payload.Identity, at time.Time) (Transition, error)
}

// Lister reads the records of a seminar.
type Lister interface {
	ListBySeminar(ctx context.Context, seminarID string) ([]Record, error)
}

// Backend is a Store that can also list records.
type Backend interface {
	Store
	Lister
}
