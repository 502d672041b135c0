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

// Package bootstrap turns a loaded configuration into running components.
//
// Both binaries of depvec start the same way:
//
//	cfg, err := config.Load(path)
//	logger := bootstrap.NewLogger(cfg.Log, os.Stderr, debug)
//	store, err := bootstrap.OpenStore(ctx, cfg.Redis, logger)
//
// The dispatcher then needs only the store:
//
//	d := bootstrap.NewDispatcher(cfg, store, logger)
//	http.ListenAndServe(cfg.Dispatcher.ListenAddr, dispatch.NewHandler(d, store, logger))
//
// The worker also needs the vector index:
//
//	index, err := bootstrap.OpenIndex(cfg.Index, logger)
//	w, err := bootstrap.NewWorker(cfg, store, index, logger)
//	err = w.Run(ctx)
//
// # Project initialization
//
// InitProject writes a configuration file and, for the embedded index,
// creates the index file and its collection. It refuses to overwrite an
// existing file unless forced, so it is safe to run from scripts.
package bootstrap
