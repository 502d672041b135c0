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

// Package ui provides terminal output helpers for the depvec CLI.
//
// Colors follow --no-color and NO_COLOR, and are disabled automatically when
// stdout is not a TTY.
//
//	ui.Header("Worker")
//	fmt.Println(ui.Label("status:"), ui.StatusText(st))
//	ui.Success("Task queued")
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/kraklabs/depvec/pkg/queue"
)

var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors forces colors off when noColor is set.
func InitColors(noColor bool) {
	color.NoColor = noColor
}

func Success(msg string) {
	_, _ = Green.Println("✓ " + msg)
}

func Successf(format string, args ...any) {
	_, _ = Green.Printf("✓ "+format+"\n", args...)
}

func Warning(msg string) {
	_, _ = Yellow.Println("⚠ " + msg)
}

func Warningf(format string, args ...any) {
	_, _ = Yellow.Printf("⚠ "+format+"\n", args...)
}

func Error(msg string) {
	_, _ = Red.Println("✗ " + msg)
}

func Info(msg string) {
	_, _ = Cyan.Println("ℹ " + msg)
}

func Infof(format string, args ...any) {
	_, _ = Cyan.Printf("ℹ "+format+"\n", args...)
}

// Header prints text in bold followed by an underline of '='.
func Header(text string) {
	_, _ = Bold.Println(text)
	fmt.Println(strings.Repeat("=", len(text)))
}

func Label(text string) string {
	return Bold.Sprint(text)
}

func DimText(text string) string {
	return Dim.Sprint(text)
}

func CountText(count int64) string {
	return Cyan.Sprint(count)
}

// StatusText colors a worker status: idle green, processing cyan, error red,
// offline dim.
func StatusText(s queue.WorkerStatus) string {
	switch {
	case s == queue.StatusIdle:
		return Green.Sprint(s)
	case s.IsProcessing():
		return Cyan.Sprint(s)
	case s.IsError():
		return Red.Sprint(s)
	default:
		return Dim.Sprint(s)
	}
}

// OutcomeText colors a job outcome.
func OutcomeText(o queue.JobOutcome) string {
	switch o {
	case queue.OutcomeComplete:
		return Green.Sprint(o)
	case queue.OutcomeFailed:
		return Red.Sprint(o)
	default:
		return Yellow.Sprint(o)
	}
}
