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

package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPythonImports(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "plain import",
			src:  "import os\n",
			want: []string{"os"},
		},
		{
			name: "multiple and dotted",
			src:  "import os, json.decoder\n",
			want: []string{"os", "json.decoder"},
		},
		{
			name: "aliased",
			src:  "import numpy as np\n",
			want: []string{"numpy"},
		},
		{
			name: "from absolute",
			src:  "from pkg.sub import thing\n",
			want: []string{"pkg.sub", "pkg.sub.thing"},
		},
		{
			name: "from relative package",
			src:  "from . import b\n",
			want: []string{".", ".b"},
		},
		{
			name: "from parent",
			src:  "from ..core import models as m\n",
			want: []string{"..core", "..core.models"},
		},
		{
			name: "nested in function",
			src:  "def f():\n    import json\n    return json\n",
			want: []string{"json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := parseImports(t, "pkg/mod.py", tt.src)
			assert.Equal(t, tt.want, targets(refs))
		})
	}
}

func TestPythonImports_Lines(t *testing.T) {
	refs := parseImports(t, "a.py", "\"\"\"doc\"\"\"\n\nimport os\nfrom x import y\n")

	if assert.Len(t, refs, 3) {
		assert.Equal(t, 3, refs[0].Line)
		assert.Equal(t, 4, refs[1].Line)
		assert.Equal(t, 4, refs[2].Line)
	}
}
