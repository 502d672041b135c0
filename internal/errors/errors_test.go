// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want string
	}{
		{"with underlying error", &UserError{Message: "Cannot reach queue", Err: fmt.Errorf("refused")}, "Cannot reach queue: refused"},
		{"without underlying error", &UserError{Message: "Invalid input"}, "Invalid input"},
		{"empty", &UserError{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestUserError_Unwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := NewStoreError("msg", "cause", "fix", fmt.Errorf("wrapped: %w", sentinel))
	assert.ErrorIs(t, err, sentinel)

	var ue *UserError
	require.ErrorAs(t, fmt.Errorf("outer: %w", err), &ue)
	assert.Equal(t, ExitStore, ue.ExitCode)
}

func TestConstructors(t *testing.T) {
	cause := errors.New("x")
	tests := []struct {
		name     string
		err      *UserError
		wantCode int
		wantErr  bool
	}{
		{"config", NewConfigError("m", "c", "f", cause), ExitConfig, true},
		{"store", NewStoreError("m", "c", "f", cause), ExitStore, true},
		{"network", NewNetworkError("m", "c", "f", cause), ExitNetwork, true},
		{"input", NewInputError("m", "c", "f"), ExitInput, false},
		{"permission", NewPermissionError("m", "c", "f", nil), ExitPermission, false},
		{"not found", NewNotFoundError("m", "c", "f"), ExitNotFound, false},
		{"internal", NewInternalError("m", "c", "f", cause), ExitInternal, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.ExitCode)
			assert.Equal(t, "m", tt.err.Message)
			assert.Equal(t, "c", tt.err.Cause)
			assert.Equal(t, "f", tt.err.Fix)
			assert.Equal(t, tt.wantErr, tt.err.Err != nil)
		})
	}
}

func TestExitCodes_Uniqueness(t *testing.T) {
	codes := []int{ExitSuccess, ExitConfig, ExitStore, ExitNetwork, ExitInput, ExitPermission, ExitNotFound, ExitInternal}
	seen := make(map[int]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate exit code %d", code)
		seen[code] = true
	}
}

func TestFormat(t *testing.T) {
	err := NewStoreError("Cannot reach the task queue", "connection refused", "Start Redis", nil)
	out := err.Format(true)
	assert.Equal(t, "Error: Cannot reach the task queue\nCause: connection refused\nFix:   Start Redis\n", out)

	bare := &UserError{Message: "only message"}
	assert.Equal(t, "Error: only message\n", bare.Format(true))
}

func TestReport(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	code := Report(&buf, NewInputError("Bad URL", "contains ;", "Remove shell characters"), false)
	assert.Equal(t, ExitInput, code)
	assert.True(t, strings.HasPrefix(buf.String(), "Error: Bad URL"))

	buf.Reset()
	code = Report(&buf, NewPermissionError("Rejected", "bad token", "", nil), true)
	assert.Equal(t, ExitPermission, code)
	var decoded ErrorJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Rejected", decoded.Error)
	assert.Equal(t, ExitPermission, decoded.ExitCode)
	assert.Empty(t, decoded.Fix)

	buf.Reset()
	code = Report(&buf, errors.New("plain"), false)
	assert.Equal(t, ExitInternal, code)
	assert.Equal(t, "Error: plain\n", buf.String())

	assert.Equal(t, ExitSuccess, Report(&buf, nil, false))
}
