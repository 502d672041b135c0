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

// StatusResult is the --json shape of 'depvec status'.
type StatusResult struct {
	WorkerID   string             `json:"worker_id,omitempty"`
	Status     queue.WorkerStatus `json:"status"`
	QueueDepth int64              `json:"queue_depth"`
	QueueCap   int                `json:"queue_cap"`
	Timestamp  time.Time          `json:"timestamp"`
}

// runStatus prints the worker status and the queue depth.
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	workerID := fs.String("worker", "", "Worker id (default: worker.id)")
	fs.Usage = usage(fs, "status [options]", "Shows the worker status value and the queue depth.",
		"  depvec status\n  depvec --json status --worker w1")
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

	d := bootstrap.NewDispatcher(cfg, store, logger)
	st, err := d.WorkerStatus(ctx, *workerID)
	if err != nil {
		errors.FatalError(errors.NewStoreError("Cannot read worker status", err.Error(), "", err), globals.JSON)
	}
	depth, err := d.QueueDepth(ctx)
	if err != nil {
		errors.FatalError(errors.NewStoreError("Cannot read queue depth", err.Error(), "", err), globals.JSON)
	}

	id := *workerID
	if id == "" {
		id = cfg.Worker.ID
	}
	res := StatusResult{WorkerID: id, Status: st, QueueDepth: depth, QueueCap: d.Capacity(), Timestamp: time.Now().UTC()}
	if globals.JSON {
		_ = output.JSON(res)
		return
	}
	printStatus(res)
}

func printStatus(res StatusResult) {
	ui.Header("depvec Worker Status")
	if res.WorkerID != "" {
		fmt.Println(ui.Label("Worker:"), res.WorkerID)
	}
	fmt.Println(ui.Label("Status:"), ui.StatusText(res.Status))
	fmt.Printf("%s %s / %d\n", ui.Label("Queue: "), ui.CountText(res.QueueDepth), res.QueueCap)
}
