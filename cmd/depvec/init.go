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
	stderrors "errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/depvec/internal/bootstrap"
	"github.com/kraklabs/depvec/internal/config"
	"github.com/kraklabs/depvec/internal/errors"
	"github.com/kraklabs/depvec/internal/output"
	"github.com/kraklabs/depvec/internal/ui"
)

type initResult struct {
	ConfigPath string `json:"config_path"`
	Backend    string `json:"backend"`
	IndexPath  string `json:"index_path,omitempty"`
	AdminToken string `json:"admin_token,omitempty"`
}

// runInit writes a configuration file. Without --admin-token a random token
// is generated and printed once.
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.BoolP("force", "f", false, "Overwrite an existing file")
	token := fs.String("admin-token", "", "Admin token for the dispatch API (generated when empty)")
	backend := fs.String("backend", "qdrant", "Vector index backend: qdrant or embedded")
	indexURL := fs.String("index-url", "", "Qdrant URL")
	indexPath := fs.String("index-path", "", "Path of the embedded index file")
	redisAddr := fs.String("redis-addr", "", "Redis address (host:port)")
	fs.Usage = usage(fs, "init [options]",
		"Writes a configuration file with default values. Values given as flags\nreplace the defaults.",
		"  depvec init\n  depvec init --backend embedded --index-path data/index.db\n  depvec --config prod.yaml init --redis-addr redis:6379 --force")
	if err := fs.Parse(args); err != nil {
		os.Exit(errors.ExitInput)
	}

	cfg := config.Default()
	cfg.Index.Backend = *backend
	if *indexURL != "" {
		cfg.Index.URL = *indexURL
	}
	if *indexPath != "" {
		cfg.Index.Path = *indexPath
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	generated := *token == ""
	cfg.Dispatcher.AdminToken = *token
	if generated {
		cfg.Dispatcher.AdminToken = uuid.NewString()
	}

	info, err := bootstrap.InitProject(globals.ConfigPath, cfg, *force, nil)
	switch {
	case stderrors.Is(err, bootstrap.ErrConfigExists):
		errors.FatalError(errors.NewInputError(
			"Configuration already exists",
			globals.ConfigPath+" is present",
			"Re-run with --force to overwrite it",
		), globals.JSON)
	case err != nil:
		errors.FatalError(errors.NewConfigError(
			"Cannot write configuration",
			err.Error(),
			"Check the flag values and that the directory is writable",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		res := initResult{ConfigPath: info.ConfigPath, Backend: cfg.Index.Backend, IndexPath: info.IndexPath}
		if generated {
			res.AdminToken = cfg.Dispatcher.AdminToken
		}
		_ = output.JSON(res)
		return
	}

	ui.Successf("Wrote %s", info.ConfigPath)
	if info.IndexPath != "" {
		ui.Successf("Created embedded index at %s", info.IndexPath)
	}
	if generated {
		fmt.Println()
		fmt.Println(ui.Label("Admin token:"), cfg.Dispatcher.AdminToken)
		fmt.Println(ui.DimText("Stored in the file; pass it as 'Authorization: Bearer <token>'."))
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  depvec dispatcher   Serve the dispatch API")
	fmt.Println("  depvec worker       Start processing jobs")
}
