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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/depvec/internal/bootstrap"
	"github.com/kraklabs/depvec/internal/errors"
	"github.com/kraklabs/depvec/pkg/dispatch"
)

// runDispatcher serves the dispatch API until SIGINT or SIGTERM.
func runDispatcher(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("dispatcher", flag.ExitOnError)
	listen := fs.String("listen", "", "Listen address (overrides dispatcher.listen_addr)")
	fs.Usage = usage(fs, "dispatcher [options]",
		"Serves POST /ingest, GET /worker/status, GET /jobs/history, GET /queue,\nGET /healthz and GET /metrics.",
		"  depvec dispatcher\n  depvec dispatcher --listen 127.0.0.1:9000")
	if err := fs.Parse(args); err != nil {
		os.Exit(errors.ExitInput)
	}

	cfg, err := loadConfig(globals)
	errors.FatalError(err, globals.JSON)
	if *listen != "" {
		cfg.Dispatcher.ListenAddr = *listen
	}
	if cfg.Dispatcher.AdminToken == "" {
		errors.FatalError(errors.NewConfigError(
			"No admin token configured",
			"Every enqueue request would be rejected",
			"Set dispatcher.admin_token or DEPVEC_ADMIN_TOKEN (at least 16 characters)",
			nil,
		), globals.JSON)
	}
	logger := newLogger(cfg, globals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	d := bootstrap.NewDispatcher(cfg, store, logger)
	srv := &http.Server{
		Addr:              cfg.Dispatcher.ListenAddr,
		Handler:           dispatch.NewHandler(d, store, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("dispatcher.listen", "addr", srv.Addr, "queue_cap", d.Capacity())
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatcher.ShutdownTimeout)
		defer cancel()
		logger.Info("dispatcher.shutdown")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		errors.FatalError(errors.NewNetworkError(
			"Dispatcher stopped with an error",
			err.Error(),
			"Check that the listen address is free",
			err,
		), globals.JSON)
	}
}
