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
	stderrors "errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/depvec/internal/bootstrap"
	"github.com/kraklabs/depvec/internal/errors"
	"github.com/kraklabs/depvec/internal/ui"
	"github.com/kraklabs/depvec/pkg/worker"
)

// runWorker runs the poll loop. The first SIGINT or SIGTERM stops polling
// and lets the current job finish; a second one aborts the job.
func runWorker(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	once := fs.Bool("once", false, "Process at most one queued task and exit")
	metricsAddr := fs.String("metrics-addr", "", "Serve /metrics on this address (overrides metrics.addr)")
	workerID := fs.String("id", "", "Worker id; namespaces the status key (overrides worker.id)")
	fs.Usage = usage(fs, "worker [options]",
		"Polls the task queue and runs fetch, graph build, training and publish\nfor each task.",
		"  depvec worker\n  depvec worker --id w1 --metrics-addr :9100\n  depvec worker --once")
	if err := fs.Parse(args); err != nil {
		os.Exit(errors.ExitInput)
	}

	cfg, err := loadConfig(globals)
	errors.FatalError(err, globals.JSON)
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *workerID != "" {
		cfg.Worker.ID = *workerID
	}
	logger := newLogger(cfg, globals)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := bootstrap.OpenStore(ctx, cfg.Redis, logger)
	if err != nil {
		errors.FatalError(errors.NewStoreError(
			"Cannot connect to Redis",
			err.Error(),
			"Check redis.addr and that Redis is running",
			err,
		), globals.JSON)
	}
	defer func() { _ = store.Close() }()

	index, err := bootstrap.OpenIndex(cfg.Index, logger)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot open the vector index",
			err.Error(),
			"Check the index section of the configuration",
			err,
		), globals.JSON)
	}
	defer func() { _ = index.Close() }()

	w, err := bootstrap.NewWorker(cfg, store, index, logger)
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot create worker", err.Error(), "", err), globals.JSON)
	}

	go handleSignals(cancel, w, logger)

	if *once {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			errors.FatalError(errors.NewStoreError("Cannot pop a task", err.Error(), "Check that Redis is reachable", err), globals.JSON)
		}
		if !globals.Quiet {
			if processed {
				ui.Success("Processed one task")
			} else {
				ui.Info("Queue is empty")
			}
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("worker.metrics.listen", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error { return w.Run(gctx) })

	if err := g.Wait(); err != nil {
		errors.FatalError(errors.NewNetworkError("Worker stopped with an error", err.Error(), "", err), globals.JSON)
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// handleSignals implements the two-phase shutdown.
func handleSignals(stop context.CancelFunc, w *worker.Worker, logger *slog.Logger) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	<-sigs
	logger.Info("worker.shutdown.graceful", "hint", "signal again to abort the running job")
	stop()
	<-sigs
	logger.Warn("worker.shutdown.abort")
	w.Abort()
}
