package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"seminar-attendance/internal/payload"
)

// Repository persists attendance records with database/sql. The statements
// only use $n placeholders, ON CONFLICT and RETURNING, so the same code runs
// on Postgres (pgx) and SQLite (go-sqlite3). SQLite numbers $n by first
// appearance, so placeholders must occur in argument order.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, seminar_id, participant_email, time_in, time_out, created_at`

// RecordTimeIn inserts the record or fills an empty time_in in one statement.
func (r *Repository) RecordTimeIn(ctx context.Context, id payload.Identity, at time.Time) (Transition, error) {
	at = normalizeTime(at)
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO seminar_attendance (id, seminar_id, participant_email, time_in, created_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (seminar_id, participant_email) DO UPDATE
		SET time_in = COALESCE(seminar_attendance.time_in, EXCLUDED.time_in)
		RETURNING `+recordColumns,
		uuid.NewString(), id.SeminarID, id.ParticipantEmail, at)
	rec, err := scanRecord(row)
	if err != nil {
		return Transition{}, err
	}
	return Transition{Record: rec, Applied: rec.TimeIn != nil && rec.TimeIn.Equal(at)}, nil
}

// RecordTimeOut sets time_out once. A second call returns the stored row unchanged.
func (r *Repository) RecordTimeOut(ctx context.Context, id payload.Identity, at time.Time) (Transition, error) {
	at = normalizeTime(at)
	row := r.db.QueryRowContext(ctx, `
		UPDATE seminar_attendance
		SET time_out = $1
		WHERE seminar_id = $2 AND participant_email = $3
		  AND time_in IS NOT NULL AND time_out IS NULL
		RETURNING `+recordColumns,
		at, id.SeminarID, id.ParticipantEmail)
	rec, err := scanRecord(row)
	if err == nil {
		return Transition{Record: rec, Applied: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Transition{}, err
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return Transition{}, err
	}
	if existing == nil || existing.TimeIn == nil {
		return Transition{}, ErrNotCheckedIn
	}
	return Transition{Record: *existing}, nil
}

// Get returns the record for id, or nil when none exists.
func (r *Repository) Get(ctx context.Context, id payload.Identity) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM seminar_attendance
		WHERE seminar_id = $1 AND participant_email = $2
	`, id.SeminarID, id.ParticipantEmail)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListBySeminar returns the records of a seminar in creation order.
func (r *Repository) ListBySeminar(ctx context.Context, seminarID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM seminar_attendance
		WHERE seminar_id = $1
		ORDER BY created_at
	`, seminarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var timeIn, timeOut, createdAt dbTime
	if err := s.Scan(&rec.ID, &rec.SeminarID, &rec.ParticipantEmail, &timeIn, &timeOut, &createdAt); err != nil {
		return Record{}, err
	}
	rec.TimeIn = timeIn.t
	rec.TimeOut = timeOut.t
	if createdAt.t != nil {
		rec.CreatedAt = *createdAt.t
	}
	return rec, nil
}

// SQLite hands back TEXT for timestamps it cannot type, e.g. RETURNING columns.
var textTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// dbTime scans a nullable timestamp stored as a native time or as text.
type dbTime struct {
	t *time.Time
}

func (d *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		d.t = nil
		return nil
	case time.Time:
		u := x.UTC()
		d.t = &u
		return nil
	case []byte:
		return d.parse(string(x))
	case string:
		return d.parse(x)
	}
	return fmt.Errorf("unsupported timestamp type %T", v)
}

func (d *dbTime) parse(s string) error {
	for _, layout := range textTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			d.t = &u
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

// normalizeTime drops precision Postgres would not round-trip.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
