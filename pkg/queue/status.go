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
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorkerStatus is the single process-wide status value published by a worker.
type WorkerStatus string

const (
	// StatusIdle means the worker is polling and has no job in flight.
	StatusIdle WorkerStatus = "Idle"

	// StatusOffline is reported when no worker has ever written a status or
	// the worker shut down.
	StatusOffline WorkerStatus = "Offline"

	processingPrefix = "Processing: "
	errorPrefix      = "Error: "
)

// Processing returns the status written while repoURL is being handled.
func Processing(repoURL string) WorkerStatus {
	return WorkerStatus(processingPrefix + repoURL)
}

// Errored returns the status written after a job failed with msg.
// Newlines are flattened so the value stays a single line.
func Errored(msg string) WorkerStatus {
	msg = strings.Join(strings.Fields(msg), " ")
	return WorkerStatus(errorPrefix + msg)
}

// IsProcessing reports whether s is a Processing status.
func (s WorkerStatus) IsProcessing() bool { return strings.HasPrefix(string(s), processingPrefix) }

// IsError reports whether s is an Error status.
func (s WorkerStatus) IsError() bool { return strings.HasPrefix(string(s), errorPrefix) }

func (s WorkerStatus) String() string { return string(s) }

// JobOutcome is the terminal status of a job attempt.
type JobOutcome string

const (
	OutcomeComplete JobOutcome = "complete"
	OutcomeFailed   JobOutcome = "failed"
	OutcomeSkipped  JobOutcome = "skipped"
)

// ReasonTTLExceeded is recorded when a task is skipped for being stale.
const ReasonTTLExceeded = "ttl exceeded"

// HistoryLimit is the number of records kept in the job history ring.
const HistoryLimit = 100

// HistoryRecord is one entry of the job history. Records are appended once
// and never mutated. Optional fields are pointers so that "zero" and "not
// applicable" stay distinguishable on the wire.
type HistoryRecord struct {
	JobID               string     `json:"job_id,omitempty"`
	RepoURL             string     `json:"repo_url"`
	Status              JobOutcome `json:"status"`
	DurationSeconds     *float64   `json:"duration_seconds,omitempty"`
	FilesProcessed      *int       `json:"files_processed,omitempty"`
	EmbeddingsGenerated *int       `json:"embeddings_generated,omitempty"`
	ParseErrors         *int       `json:"parse_errors,omitempty"`
	AgeSeconds          *float64   `json:"age_seconds,omitempty"`
	Error               string     `json:"error,omitempty"`
	Reason              string     `json:"reason,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`
}

// CompleteRecord builds the record for a successful job.
func CompleteRecord(env Envelope, duration time.Duration, files, embeddings, parseErrors int, at time.Time) HistoryRecord {
	return HistoryRecord{
		JobID:               env.JobID,
		RepoURL:             env.RepoURL,
		Status:              OutcomeComplete,
		DurationSeconds:     ptr(duration.Seconds()),
		FilesProcessed:      ptr(files),
		EmbeddingsGenerated: ptr(embeddings),
		ParseErrors:         ptr(parseErrors),
		Timestamp:           at.UTC(),
	}
}

// FailedRecord builds the record for a job that failed at any stage.
func FailedRecord(env Envelope, duration time.Duration, err error, at time.Time) HistoryRecord {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return HistoryRecord{
		JobID:           env.JobID,
		RepoURL:         env.RepoURL,
		Status:          OutcomeFailed,
		DurationSeconds: ptr(duration.Seconds()),
		Error:           msg,
		Timestamp:       at.UTC(),
	}
}

// SkippedRecord builds the record for a task dropped for being older than
// its TTL.
func SkippedRecord(env Envelope, age time.Duration, at time.Time) HistoryRecord {
	return HistoryRecord{
		JobID:      env.JobID,
		RepoURL:    env.RepoURL,
		Status:     OutcomeSkipped,
		AgeSeconds: ptr(age.Seconds()),
		Reason:     ReasonTTLExceeded,
		Timestamp:  at.UTC(),
	}
}

// Marshal encodes the record for storage.
func (r HistoryRecord) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal history record: %w", err)
	}
	return data, nil
}

// UnmarshalHistoryRecord decodes a stored record.
func UnmarshalHistoryRecord(data []byte) (HistoryRecord, error) {
	var r HistoryRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return HistoryRecord{}, fmt.Errorf("unmarshal history record: %w", err)
	}
	return r, nil
}

// ClampHistoryLimit maps a requested limit into [1, HistoryLimit]; a
// non-positive request means "everything kept".
func ClampHistoryLimit(limit int) int {
	if limit <= 0 || limit > HistoryLimit {
		return HistoryLimit
	}
	return limit
}

func ptr[T any](v T) *T { return &v }
