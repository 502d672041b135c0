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

// Package contract holds the input rules shared by the dispatcher and the
// worker.
//
// # Repository references
//
// ValidateRepoURL is the syntactic gate every repository reference passes
// before it is queued. It runs before any queue access, so a rejected
// reference never costs a Redis round trip:
//
//	if err := contract.ValidateRepoURL(raw); err != nil {
//	    // errors.Is(err, contract.ErrInvalidRepoURL) == true
//	}
//
// Accepted shapes:
//
//   - github.com/org/repo (https:// is assumed)
//   - https://github.com/org/repo.git
//   - ssh://git@example.com/org/repo
//   - git://localhost/org/repo
//
// Rejected: shell metacharacters, whitespace, "." or ".." path segments,
// embedded passwords, query strings, hosts without a dot other than
// localhost, and references without a repository path.
//
// NormalizeRepoURL and RedactURL are the companions used when the reference
// is handed to git and written to logs.
package contract
