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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/depvec/internal/bootstrap"
	"github.com/kraklabs/depvec/internal/errors"
	"github.com/kraklabs/depvec/internal/output"
	"github.com/kraklabs/depvec/internal/ui"
	"github.com/kraklabs/depvec/pkg/queue"
)

// runHistory prints recent job records, newest first.
func runHistory(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.IntP("limit", "n", 20, "Number of records (max 100)")
	fs.Usage = usage(fs, "history [options]", "Shows the most recent job records, newest first.",
		"  depvec history\n  depvec --json history -n 100")
	if err := fs.Parse(args); err != nil {
		os.Exit(errors.ExitInput)
	}

	cfg, err := loadConfig(globals)
	errors.FatalError(err, globals.JSON)
	logger := newLogger(cfg, globals)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := bootstrap.OpenStore(ctx, cfg.Redis, logger)
	if err != nil {
		errors.FatalError(errors.NewStoreError("Cannot connect to Redis", err.Error(), "Check redis.addr and that Redis is running", err), globals.JSON)
	}
	defer func() { _ = store.Close() }()

	records, err := bootstrap.NewDispatcher(cfg, store, logger).JobHistory(ctx, *limit)
	if err != nil {
		errors.FatalError(errors.NewStoreError("Cannot read job history", err.Error(), "", err), globals.JSON)
	}
	if globals.JSON {
		_ = output.JSON(records)
		return
	}
	if len(records) == 0 {
		ui.Info("No jobs recorded yet")
		return
	}
	for _, rec := range records {
		fmt.Println(historyLine(rec))
	}
}

// historyLine renders one record on a single line.
func historyLine(rec queue.HistoryRecord) string {
	line := fmt.Sprintf("%s  %-8s  %s", rec.Timestamp.Local().Format(time.DateTime), ui.OutcomeText(rec.Status), rec.RepoURL)
	switch rec.Status {
	case queue.OutcomeComplete:
		if rec.FilesProcessed != nil && rec.DurationSeconds != nil {
			line += ui.DimText(fmt.Sprintf("  %d files in %.1fs", *rec.FilesProcessed, *rec.DurationSeconds))
		}
		if rec.ParseErrors != nil && *rec.ParseErrors > 0 {
			line += ui.DimText(fmt.Sprintf(", %d parse errors", *rec.ParseErrors))
		}
	case queue.OutcomeFailed:
		line += "  " + rec.Error
	case queue.OutcomeSkipped:
		line += ui.DimText("  " + rec.Reason)
		if rec.AgeSeconds != nil {
			line += ui.DimText(fmt.Sprintf(" (age %s)", time.Duration(*rec.AgeSeconds*float64(time.Second)).Round(time.Second).String()))
		}
	}
	return line
}
