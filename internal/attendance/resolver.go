package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"seminar-attendance/internal/payload"
)

// Status is the tag of a resolution Result.
type Status string

const (
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusCheckedOut Status = "CHECKED_OUT"
	StatusError      Status = "ERROR"
)

// Result reports what Resolve decided for one scan.
type Result struct {
	Status   Status
	Identity payload.Identity
	At       time.Time
	// Changed is false when a check-out scan hit an already completed record.
	Changed bool
	Cause   error
}

// Resolver decides whether a scan is a check-in or a check-out and applies it.
type Resolver struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger sets the logger used for store failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve attempts a check-in first; only when that attempt was a no-op does
// it issue the check-out. The two store calls are strictly sequential. Errors
// wrap ErrStore (or payload.ErrInvalidPayload for an incomplete identity) and
// are never retried here.
func (r *Resolver) Resolve(ctx context.Context, id payload.Identity) (Result, error) {
	if !id.Valid() {
		return r.fail(id, payload.ErrInvalidPayload), payload.ErrInvalidPayload
	}

	in, err := r.store.RecordTimeIn(ctx, id, r.now())
	if err != nil {
		err = fmt.Errorf("%w: record time-in: %w", ErrStore, err)
		return r.fail(id, err), err
	}
	if in.Applied && in.Record.Stage() == StageAwaitingOut {
		return Result{
			Status:   StatusCheckedIn,
			Identity: id,
			At:       *in.Record.TimeIn,
			Changed:  true,
		}, nil
	}

	out, err := r.store.RecordTimeOut(ctx, id, r.now())
	if err != nil {
		err = fmt.Errorf("%w: record time-out: %w", ErrStore, err)
		return r.fail(id, err), err
	}
	if out.Record.TimeOut == nil {
		err = fmt.Errorf("%w: record time-out: no time_out on returned record", ErrStore)
		return r.fail(id, err), err
	}
	return Result{
		Status:   StatusCheckedOut,
		Identity: id,
		At:       *out.Record.TimeOut,
		Changed:  out.Applied,
	}, nil
}

func (r *Resolver) fail(id payload.Identity, err error) Result {
	r.logger.Error("attendance resolution failed",
		"seminar_id", id.SeminarID,
		"participant_email", id.ParticipantEmail,
		"error", err)
	return Result{Status: StatusError, Identity: id, Cause: err}
}
