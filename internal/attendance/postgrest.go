package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"seminar-attendance/internal/payload"
)

// RESTStore talks to a PostgREST (Supabase) endpoint exposing the
// seminar_attendance table and the record_time_in/record_time_out functions.
// Responses may be a single object or a one-element array; both are
// normalized to one Record here.
type RESTStore struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewRESTStore creates a client with the given request timeout.
func NewRESTStore(baseURL, apiKey string, timeout time.Duration) *RESTStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTStore{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// RecordTimeIn calls rpc/record_time_in.
func (s *RESTStore) RecordTimeIn(ctx context.Context, id payload.Identity, at time.Time) (Transition, error) {
	at = normalizeTime(at)
	recs, err := s.rpc(ctx, "record_time_in", id, at)
	if err != nil {
		return Transition{}, err
	}
	if len(recs) == 0 {
		return Transition{}, fmt.Errorf("record_time_in returned no record")
	}
	rec := recs[0]
	return Transition{Record: rec, Applied: rec.TimeIn != nil && rec.TimeIn.Equal(at)}, nil
}

// RecordTimeOut calls rpc/record_time_out. An empty response means no record exists.
func (s *RESTStore) RecordTimeOut(ctx context.Context, id payload.Identity, at time.Time) (Transition, error) {
	at = normalizeTime(at)
	recs, err := s.rpc(ctx, "record_time_out", id, at)
	if err != nil {
		return Transition{}, err
	}
	if len(recs) == 0 || recs[0].TimeIn == nil {
		return Transition{}, ErrNotCheckedIn
	}
	rec := recs[0]
	return Transition{Record: rec, Applied: rec.TimeOut != nil && rec.TimeOut.Equal(at)}, nil
}

// ListBySeminar reads the table directly.
func (s *RESTStore) ListBySeminar(ctx context.Context, seminarID string) ([]Record, error) {
	q := url.Values{}
	q.Set("seminar_id", "eq."+seminarID)
	q.Set("order", "created_at.asc")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/seminar_attendance?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return s.do(req)
}

func (s *RESTStore) rpc(ctx context.Context, fn string, id payload.Identity, at time.Time) ([]Record, error) {
	body, _ := json.Marshal(map[string]any{
		"p_seminar_id":        id.SeminarID,
		"p_participant_email": id.ParticipantEmail,
		"p_at":                at,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/rpc/"+fn, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *RESTStore) do(req *http.Request) ([]Record, error) {
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		req.Header.Set("apikey", s.APIKey)
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("postgrest request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read postgrest response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("postgrest error %s: %s", resp.Status, string(raw))
	}
	return decodeRecords(raw)
}

// decodeRecords accepts null, an object or an array of objects.
func decodeRecords(raw []byte) ([]Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var recs []Record
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		return recs, nil
	case '{':
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		return []Record{rec}, nil
	}
	return nil, fmt.Errorf("unexpected postgrest response: %.64s", raw)
}
