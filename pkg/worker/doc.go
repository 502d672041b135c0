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

// Package worker implements the compute plane: a sequential poll loop that
// takes one task at a time off the shared queue and runs it through
//
//	fetch -> build graph -> train embeddings -> publish
//
// Every job ends with exactly one history record (complete, failed or
// skipped). The worker status value tracks the loop:
//
//	Idle                      polling, nothing in flight
//	Processing: <repo_url>    a job is running
//	Error: <message>          the last job failed; cleared by the next job
//	Offline                   the loop exited
//
// # Shutdown
//
// Cancelling the context passed to Run stops further pops and lets the job
// in flight finish. Abort cancels the job itself; its checkout is still
// removed.
package worker
