// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EnvelopeFormat tells which wire form an envelope was decoded from.
type EnvelopeFormat int

const (
	// FormatStructured is the JSON object form written by the dispatcher.
	FormatStructured EnvelopeFormat = iota

	// FormatLegacy is a bare repository URL with no submission metadata.
	FormatLegacy
)

func (f EnvelopeFormat) String() string {
	if f == FormatLegacy {
		return "legacy"
	}
	return "structured"
}

// ErrMalformedEnvelope is returned when a payload is neither a structured
// envelope nor a usable bare URL.
var ErrMalformedEnvelope = errors.New("malformed task envelope")

// Envelope is the unit of work pushed onto the queue.
//
// Envelopes are immutable once created. SubmittedAt is the zero time for
// legacy envelopes, which are never subject to TTL enforcement.
type Envelope struct {
	JobID       string
	RepoURL     string
	SubmittedAt time.Time
	TTL         time.Duration
	Format      EnvelopeFormat
}

// NewEnvelope builds a structured envelope stamped with submittedAt.
func NewEnvelope(jobID, repoURL string, submittedAt time.Time, ttl time.Duration) Envelope {
	return Envelope{
		JobID:       jobID,
		RepoURL:     repoURL,
		SubmittedAt: submittedAt.UTC(),
		TTL:         ttl,
		Format:      FormatStructured,
	}
}

// wireEnvelope is the JSON shape on the queue.
type wireEnvelope struct {
	JobID       string          `json:"job_id,omitempty"`
	RepoURL     string          `json:"repo_url"`
	SubmittedAt json.RawMessage `json:"submitted_at,omitempty"`
	TTLSeconds  int64           `json:"ttl_seconds"`
}

// Encode serializes the envelope into its structured JSON form.
func (e Envelope) Encode() ([]byte, error) {
	if e.RepoURL == "" {
		return nil, fmt.Errorf("encode envelope: %w", ErrMalformedEnvelope)
	}
	w := wireEnvelope{
		JobID:      e.JobID,
		RepoURL:    e.RepoURL,
		TTLSeconds: int64(e.TTL / time.Second),
	}
	if !e.SubmittedAt.IsZero() {
		ts, err := json.Marshal(e.SubmittedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("encode submitted_at: %w", err)
		}
		w.SubmittedAt = ts
	}
	return json.Marshal(w)
}

// DecodeEnvelope decodes a queue payload in two steps: first as a structured
// JSON envelope, then as a legacy bare URL string. A JSON string literal is
// unquoted before being treated as a legacy URL.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Envelope{}, ErrMalformedEnvelope
	}

	if env, ok := decodeStructured(trimmed); ok {
		return env, nil
	}
	return decodeLegacy(trimmed)
}

func decodeStructured(raw []byte) (Envelope, bool) {
	if raw[0] != '{' {
		return Envelope{}, false
	}
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return Envelope{}, false
	}
	repoURL := strings.TrimSpace(w.RepoURL)
	if repoURL == "" {
		return Envelope{}, false
	}
	submitted, err := parseSubmittedAt(w.SubmittedAt)
	if err != nil {
		return Envelope{}, false
	}
	return Envelope{
		JobID:       w.JobID,
		RepoURL:     repoURL,
		SubmittedAt: submitted,
		TTL:         time.Duration(w.TTLSeconds) * time.Second,
		Format:      FormatStructured,
	}, true
}

func decodeLegacy(raw []byte) (Envelope, error) {
	value := string(raw)
	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(value)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		value = unquoted
	}
	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, "{}\n\r") {
		return Envelope{}, ErrMalformedEnvelope
	}
	return Envelope{RepoURL: value, Format: FormatLegacy}, nil
}

// parseSubmittedAt accepts an RFC 3339 string or a numeric Unix timestamp
// (seconds, possibly fractional). Absent or null yields the zero time.
func parseSubmittedAt(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, err
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return time.Time{}, fmt.Errorf("invalid timestamp %v", secs)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// HasSubmissionTime reports whether the envelope carries a known submission
// time. Only such envelopes are TTL-checked.
func (e Envelope) HasSubmissionTime() bool {
	return e.Format == FormatStructured && !e.SubmittedAt.IsZero()
}

// Age returns how long ago the envelope was submitted. The second result is
// false when the submission time is unknown.
func (e Envelope) Age(now time.Time) (time.Duration, bool) {
	if !e.HasSubmissionTime() {
		return 0, false
	}
	return now.Sub(e.SubmittedAt), true
}

// Expired reports whether the envelope outlived its TTL at now. Envelopes
// without a submission time, or with a non-positive TTL, never expire.
func (e Envelope) Expired(now time.Time) (time.Duration, bool) {
	age, known := e.Age(now)
	if !known {
		return 0, false
	}
	if e.TTL <= 0 {
		return age, false
	}
	return age, age > e.TTL
}
