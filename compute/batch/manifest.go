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
	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Manifest describes a batch in TOML:
//
//	name = "sweep"
//
//	[[jobs]]
//	name = "sample0"
//	commands = ["./run.sh 0"]
type Manifest struct {
	Name string        `toml:"name"`
	Jobs []ManifestJob `toml:"jobs"`
}

type ManifestJob struct {
	Name     string   `toml:"name"`
	Commands []string `toml:"commands"`
}

// LoadManifest reads a batch manifest. Jobs must have unique, non-empty names.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest

	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode manifest '%s'", path)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown keys in manifest '%s': %v", path, undecoded)
	}

	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid manifest '%s'", path)
	}

	return &m, nil
}

// Validate checks that the jobs can be told apart.
func (m *Manifest) Validate() error {
	var merr *multierror.Error

	if len(m.Jobs) == 0 {
		merr = multierror.Append(merr, errors.New("no jobs"))
	}

	seen := make(map[string]bool, len(m.Jobs))

	for i, job := range m.Jobs {
		switch {
		case job.Name == "":
			merr = multierror.Append(merr, errors.Errorf("job #%d has no name", i))
		case seen[job.Name]:
			merr = multierror.Append(merr, errors.Errorf("duplicate job name '%s'", job.Name))
		}

		seen[job.Name] = true
	}

	return merr.ErrorOrNil()
}

// BatchJobs returns the jobs of the manifest, ready to be launched.
func (m *Manifest) BatchJobs() []*Job {
	jobs := make([]*Job, 0, len(m.Jobs))

	for _, job := range m.Jobs {
		jobs = append(jobs, &Job{Name: job.Name, Body: job.Commands})
	}

	return jobs
}
