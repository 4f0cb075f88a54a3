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

package path

import (
	"path/filepath"
	"testing"
)

func TestLookPath(t *testing.T) {
	tests := []struct {
		name    string
		binary  string
		wantErr bool
	}{
		{name: "shell", binary: "sh"},
		{name: "missing", binary: "no-such-binary-for-pbskit", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := LookPath(tt.binary)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LookPath(%s) error = %v, wantErr %v", tt.binary, err, tt.wantErr)
			}

			if !tt.wantErr && filepath.Base(path) != tt.binary {
				t.Errorf("LookPath(%s) = %s", tt.binary, path)
			}
		})
	}
}
