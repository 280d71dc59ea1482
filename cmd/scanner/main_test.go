package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seminar-attendance/internal/api"
	"seminar-attendance/internal/attendance"
	"seminar-attendance/internal/payload"
)

type stubSubmitter struct {
	resp   *api.ResolveResponse
	err    error
	calls  []string
	manual [][2]string
}

func (s *stubSubmitter) Scan(_ context.Context, text string) (*api.ResolveResponse, error) {
	s.calls = append(s.calls, text)
	return s.resp, s.err
}

func (s *stubSubmitter) Manual(_ context.Context, seminarID, email string) (*api.ResolveResponse, error) {
	s.manual = append(s.manual, [2]string{seminarID, email})
	return s.resp, s.err
}

func newKiosk(sub Submitter) (*kiosk, *bytes.Buffer) {
	var out bytes.Buffer
	return &kiosk{
		api:     sub,
		out:     &out,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: time.Second,
	}, &out
}

func TestKioskRejectsInvalidLocally(t *testing.T) {
	sub := &stubSubmitter{}
	k, out := newKiosk(sub)

	err := k.handle(context.Background(), "not-a-payload")
	assert.ErrorIs(t, err, payload.ErrInvalidPayload)
	assert.Empty(t, sub.calls)
	assert.Contains(t, out.String(), "Invalid QR")
}

func TestKioskPrintsResult(t *testing.T) {
	sub := &stubSubmitter{resp: &api.ResolveResponse{
		Status:           attendance.StatusCheckedIn,
		ParticipantEmail: "a@b.com",
		Changed:          true,
		Message:          "a@b.com checked IN at 09:00:00",
	}}
	k, out := newKiosk(sub)

	require.NoError(t, k.handle(context.Background(), "S1|a@b.com"))
	assert.Equal(t, []string{"S1|a@b.com"}, sub.calls)
	assert.Equal(t, "a@b.com checked IN at 09:00:00\n", out.String())
}

func TestKioskAlreadyCheckedOut(t *testing.T) {
	sub := &stubSubmitter{resp: &api.ResolveResponse{
		Status:           attendance.StatusCheckedOut,
		ParticipantEmail: "a@b.com",
		Message:          "a@b.com checked OUT at 10:00:00",
	}}
	k, out := newKiosk(sub)

	require.NoError(t, k.handle(context.Background(), "S1|a@b.com"))
	assert.Equal(t, "a@b.com already checked out\n", out.String())
}

func TestKioskSubmitFailure(t *testing.T) {
	k, out := newKiosk(&stubSubmitter{err: errors.New("connection refused")})
	require.Error(t, k.handle(context.Background(), "S1|a@b.com"))
	assert.Equal(t, "Error recording attendance.\n", out.String())
}

func TestKioskManualEntry(t *testing.T) {
	sub := &stubSubmitter{resp: &api.ResolveResponse{
		Status:           attendance.StatusCheckedIn,
		ParticipantEmail: "a@b.com",
		Changed:          true,
		Message:          "a@b.com checked IN at 09:00:00",
	}}
	k, out := newKiosk(sub)

	require.NoError(t, k.manual(context.Background(), "S1", "a@b.com"))
	assert.Equal(t, [][2]string{{"S1", "a@b.com"}}, sub.manual)
	assert.Empty(t, sub.calls)
	assert.Equal(t, "a@b.com checked IN at 09:00:00\n", out.String())
}

func TestKioskManualEntryRequiresBothFields(t *testing.T) {
	sub := &stubSubmitter{}
	k, out := newKiosk(sub)

	assert.ErrorIs(t, k.manual(context.Background(), "S1", ""), payload.ErrInvalidPayload)
	assert.Empty(t, sub.manual)
	assert.Equal(t, "Enter seminar id and participant email.\n", out.String())
}
