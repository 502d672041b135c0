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
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/depvec/internal/bootstrap"
	"github.com/kraklabs/depvec/internal/errors"
	"github.com/kraklabs/depvec/internal/output"
	"github.com/kraklabs/depvec/internal/ui"
	"github.com/kraklabs/depvec/pkg/dispatch"
)

// runEnqueue queues one repository, either through a running dispatcher
// (--server) or directly against Redis.
func runEnqueue(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	server := fs.String("server", "", "Dispatcher base URL; empty talks to Redis directly")
	token := fs.String("token", "", "Admin token (default: dispatcher.admin_token)")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	fs.Usage = usage(fs, "enqueue [options] <repo_url>",
		"Queues a repository. The reference is validated before anything is\nqueued.",
		"  depvec enqueue https://github.com/org/repo\n  depvec enqueue --server http://dispatch:8080 --token $TOKEN github.com/org/repo")
	if err := fs.Parse(args); err != nil {
		os.Exit(errors.ExitInput)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(errors.ExitInput)
	}
	repoURL := fs.Arg(0)

	cfg, err := loadConfig(globals)
	errors.FatalError(err, globals.JSON)
	if *token == "" {
		*token = cfg.Dispatcher.AdminToken
	}
	logger := newLogger(cfg, globals)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var res dispatch.EnqueueResult
	if *server != "" {
		res, err = postEnqueue(ctx, http.DefaultClient, *server, *token, repoURL)
	} else {
		store, serr := bootstrap.OpenStore(ctx, cfg.Redis, logger)
		if serr != nil {
			errors.FatalError(errors.NewStoreError("Cannot connect to Redis", serr.Error(), "Check redis.addr or use --server", serr), globals.JSON)
		}
		defer func() { _ = store.Close() }()
		res, err = bootstrap.NewDispatcher(cfg, store, logger).Enqueue(ctx, repoURL, *token)
	}
	if err != nil {
		errors.FatalError(enqueueError(err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(res)
		return
	}
	ui.Successf("Queued %s", repoURL)
	fmt.Println(ui.Label("Job:     "), res.JobID)
	fmt.Println(ui.Label("Position:"), ui.CountText(res.QueuePosition))
}

// postEnqueue calls POST /ingest/<repo_url> on a dispatcher and maps error
// responses back onto the dispatch sentinels.
func postEnqueue(ctx context.Context, client *http.Client, server, token, repoURL string) (dispatch.EnqueueResult, error) {
	endpoint := strings.TrimRight(server, "/") + "/ingest/" + url.PathEscape(repoURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return dispatch.EnqueueResult{}, fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return dispatch.EnqueueResult{}, fmt.Errorf("%w: %v", dispatch.ErrQueueUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return dispatch.EnqueueResult{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var res dispatch.EnqueueResult
		if err := json.Unmarshal(body, &res); err != nil {
			return dispatch.EnqueueResult{}, fmt.Errorf("decode response: %w", err)
		}
		return res, nil
	}

	var apiErr output.APIError
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return dispatch.EnqueueResult{}, fmt.Errorf("%w: %s", dispatch.ErrUnauthorized, msg)
	case http.StatusBadRequest:
		return dispatch.EnqueueResult{}, fmt.Errorf("%w: %s", dispatch.ErrInvalidRepoURL, msg)
	case http.StatusTooManyRequests:
		return dispatch.EnqueueResult{}, fmt.Errorf("%w: %s", dispatch.ErrQueueFull, msg)
	default:
		return dispatch.EnqueueResult{}, fmt.Errorf("%w: HTTP %d: %s", dispatch.ErrQueueUnavailable, resp.StatusCode, msg)
	}
}

func enqueueError(err error) *errors.UserError {
	switch {
	case stderrors.Is(err, dispatch.ErrUnauthorized):
		return errors.NewPermissionError("Enqueue rejected", "The admin token does not match", "Pass --token or set DEPVEC_ADMIN_TOKEN", err)
	case stderrors.Is(err, dispatch.ErrInvalidRepoURL):
		return errors.NewInputError("Invalid repository URL", err.Error(), "Use a reference like https://github.com/org/repo")
	case stderrors.Is(err, dispatch.ErrQueueFull):
		return errors.NewStoreError("Queue is full", err.Error(), "Wait for the worker to drain the queue and retry", err)
	default:
		return errors.NewNetworkError("Cannot reach the task queue", err.Error(), "Check the dispatcher or Redis connection", err)
	}
}
