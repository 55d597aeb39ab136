// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		// Bare extension matches at any depth.
		{"main.go", "*.go", true},
		{"internal/server/main.go", "*.go", true},
		{"main.go", "*.py", false},
		{"assets/app.min.js", "*.min.js", true},

		// Directory prefix with **.
		{"vendor/dep/dep.go", "vendor/**", true},
		{"vendor", "vendor/**", true},
		{"third_party/vendor/x.go", "vendor/**", true},
		{"vendored/x.go", "vendor/**", false},

		// ** crossing separators.
		{"a/b/c/d.txt", "a/**/d.txt", true},
		{"a/d.txt", "a/**/d.txt", true},
		{"a/b/c/e.txt", "a/**/d.txt", false},

		// **/name form.
		{"docs/README.md", "**/README.md", true},
		{"README.md", "**/README.md", true},
		{"README.txt", "**/README.md", false},

		// Single star stays within one segment.
		{"src/util.go", "src/*.go", true},
		{"src/deep/util.go", "src/*.go", false},

		// ? and character classes.
		{"v1.go", "v?.go", true},
		{"v12.go", "v?.go", false},
		{"file1.txt", "file[0-9].txt", true},
		{"filex.txt", "file[0-9].txt", false},
		{"filex.txt", "file[!0-9].txt", true},

		// Literal patterns match whole components.
		{"Makefile", "Makefile", true},
		{"build/Makefile", "Makefile", true},
		{"node_modules/pkg/index.js", "node_modules", true},
		{"my_node_modules/x", "node_modules", false},

		// Implicit **/ prefix for mid-path patterns.
		{"a/b/test_x.py", "test_*.py", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchGlob(tt.path, tt.pattern),
			"MatchGlob(%q, %q)", tt.path, tt.pattern)
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"vendor/**", "*.min.js", "node_modules"}
	assert.True(t, MatchAny("vendor/a.go", patterns))
	assert.True(t, MatchAny("web/app.min.js", patterns))
	assert.False(t, MatchAny("pkg/app.go", patterns))
	assert.False(t, MatchAny("pkg/app.go", nil))
}
