package payload

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidPayload is returned when scanned text matches neither wire format.
var ErrInvalidPayload = errors.New("invalid payload")

// Delimiter separates the fields of the flat fallback format.
const Delimiter = "|"

// Identity names one attendance record: a participant in a seminar.
type Identity struct {
	SeminarID        string `json:"seminar_id"`
	ParticipantEmail string `json:"participant_email"`
}

// Valid reports whether both fields are non-empty.
func (id Identity) Valid() bool {
	return id.SeminarID != "" && id.ParticipantEmail != ""
}

func (id Identity) String() string {
	return id.SeminarID + Delimiter + id.ParticipantEmail
}

// Encode renders the identity in the primary (JSON) wire format.
func Encode(id Identity) string {
	// a struct of two strings always marshals
	b, _ := json.Marshal(id)
	return string(b)
}

// Decode parses scanned text into an Identity. The JSON object form is tried
// first; "<seminarId>|<participantEmail>" is only a fallback. JSON keys match
// exactly, and a numeric seminar_id is accepted as its decimal text.
func Decode(raw string) (Identity, error) {
	if id, ok := decodeJSON(raw); ok {
		return id, nil
	}

	parts := strings.Split(raw, Delimiter)
	if len(parts) != 2 {
		return Identity{}, ErrInvalidPayload
	}
	id := Identity{SeminarID: parts[0], ParticipantEmail: parts[1]}
	if !id.Valid() {
		return Identity{}, ErrInvalidPayload
	}
	return id, nil
}

func decodeJSON(raw string) (Identity, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Identity{}, false
	}
	seminar, ok := scalar(fields["seminar_id"], true)
	if !ok {
		return Identity{}, false
	}
	email, ok := scalar(fields["participant_email"], false)
	if !ok {
		return Identity{}, false
	}
	id := Identity{SeminarID: seminar, ParticipantEmail: email}
	return id, id.Valid()
}

// scalar reads a JSON string, or a JSON number when allowNumber is set.
func scalar(raw json.RawMessage, allowNumber bool) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	if !allowNumber || raw[0] == '"' {
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}
