// Copyright © 2022 FORTH-ICS
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

package batch

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "batch.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
name = "sweep"

[[jobs]]
name = "sample0"
commands = ["echo 0 > sample0.txt", "cat sample0.txt"]

[[jobs]]
name = "sample1"
commands = ["echo 1"]
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}

	jobs := m.BatchJobs()

	if m.Name != "sweep" || len(jobs) != 2 || jobs[0].Name != "sample0" || len(jobs[0].Body) != 2 || jobs[1].ID != "" {
		t.Errorf("unexpected manifest: %+v", m)
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no-jobs", content: `name = "empty"`},
		{name: "no-name", content: "[[jobs]]\ncommands = [\"ls\"]\n"},
		{name: "duplicate", content: "[[jobs]]\nname = \"a\"\n[[jobs]]\nname = \"a\"\n"},
		{name: "unknown-key", content: "[[jobs]]\nname = \"a\"\ncommand = \"ls\"\n"},
		{name: "syntax", content: "[[jobs]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadManifest(writeManifest(t, tt.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
