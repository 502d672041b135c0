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

// Package dispatch is the control plane of depvec.
//
// A Dispatcher admits repository-analysis jobs onto the shared task queue
// and reads back what workers publish. Enqueue checks, in order, the admin
// credential, the repository reference and the queue capacity:
//
//	res, err := d.Enqueue(ctx, "https://github.com/org/repo", token)
//	switch {
//	case errors.Is(err, dispatch.ErrUnauthorized):     // 401
//	case errors.Is(err, dispatch.ErrInvalidRepoURL):   // 400
//	case errors.Is(err, dispatch.ErrQueueFull):        // 429
//	case errors.Is(err, dispatch.ErrQueueUnavailable): // 503
//	}
//
// The capacity check and the push run as one Redis script, so any number
// of dispatcher processes can share a queue without overshooting its cap.
//
// NewHandler exposes the same operations over HTTP.
package dispatch
