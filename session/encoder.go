package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// CurrentRecordVersion is the schema version written by EncodeRecord.
// Records without a version field predate versioning and decode as version 0.
const CurrentRecordVersion = 1

// ErrRecordCorrupt is returned for a persisted record that cannot be used.
var ErrRecordCorrupt = errors.New("session record corrupt")

// Record is the persisted session shape shared with external collaborators.
//
// Identity fields are informational. A restored session always re-derives its
// identity from AccessToken.
type Record struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`

	Version   int    `json:"v,omitempty"`
	SessionID string `json:"sid,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// EncodeRecord serializes r at the current schema version.
func EncodeRecord(r Record) ([]byte, error) {
	if r.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrRecordCorrupt)
	}
	r.Version = CurrentRecordVersion
	return json.Marshal(r)
}

// DecodeRecord parses a persisted record. Unknown fields are ignored so that
// collaborators may annotate records.
func DecodeRecord(data []byte) (Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Record{}, fmt.Errorf("%w: not a json object", ErrRecordCorrupt)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrRecordCorrupt, err)
	}
	if r.Version < 0 || r.Version > CurrentRecordVersion {
		return Record{}, fmt.Errorf("%w: unsupported record schema version %d", ErrRecordCorrupt, r.Version)
	}
	if r.AccessToken == "" {
		return Record{}, fmt.Errorf("%w: missing access token", ErrRecordCorrupt)
	}
	return r, nil
}
