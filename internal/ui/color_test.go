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

package ui

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/depvec/pkg/queue"
)

func TestInitColors(t *testing.T) {
	original := color.NoColor
	defer func() { color.NoColor = original }()

	InitColors(true)
	assert.True(t, color.NoColor)
	InitColors(false)
	assert.False(t, color.NoColor)
}

func TestStatusText_NoColor(t *testing.T) {
	original := color.NoColor
	defer func() { color.NoColor = original }()
	color.NoColor = true

	for _, s := range []queue.WorkerStatus{
		queue.StatusIdle,
		queue.StatusOffline,
		queue.Processing("github.com/a/b"),
		queue.Errored("clone failed"),
	} {
		assert.Equal(t, string(s), StatusText(s))
	}
	assert.Equal(t, "skipped", OutcomeText(queue.OutcomeSkipped))
	assert.Equal(t, "7", CountText(7))
}
