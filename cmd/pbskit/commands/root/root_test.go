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

package root

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/batch"
	"github.com/carv-ics-forth/pbskit/compute/bsub"
	"github.com/carv-ics-forth/pbskit/compute/fake"
	"github.com/carv-ics-forth/pbskit/compute/pbs"
	"github.com/carv-ics-forth/pbskit/compute/profile"
	"github.com/carv-ics-forth/pbskit/compute/slurm"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		opts  Opts
		valid bool
	}{
		{name: "valid", opts: Opts{ConfigFile: "c.toml", User: "me"}, valid: true},
		{name: "no-config", opts: Opts{User: "me"}},
		{name: "no-user", opts: Opts{ConfigFile: "c.toml"}},
		{name: "bad-override", opts: Opts{ConfigFile: "c.toml", User: "me", Override: profile.Profile{Scheduler: "sge"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); (err == nil) != tt.valid {
				t.Errorf("Validate() = %v, valid %v", err, tt.valid)
			}
		})
	}
}

func TestProfileOverride(t *testing.T) {
	config := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(config, []byte(`
default_profile = "summit"

[profiles.summit]
scheduler = "bsub"
project = "abc123"
time = 2
`), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := Opts{
		ConfigFile: config,
		User:       "me",
		Override:   profile.Profile{Hours: 6},
		NoMail:     true,
	}

	s, err := opts.Scheduler()
	if err != nil {
		t.Fatal(err)
	}

	driver, ok := s.(*bsub.BSUB)
	if !ok {
		t.Fatalf("expected an LSF driver, got %T", s)
	}

	if driver.Time != 6 || driver.MailWhenComplete || driver.Project != "abc123" {
		t.Errorf("unexpected driver %+v", driver)
	}

	opts.ProfileName = "missing"

	if _, err := opts.Scheduler(); err == nil {
		t.Error("expected an error for an undefined profile")
	}
}

func TestSubmitCommand(t *testing.T) {
	tests := []struct {
		name     string
		opts     Opts
		expected string
	}{
		{name: "pbs", expected: "qsub"},
		{name: "slurm", opts: Opts{Override: profile.Profile{Scheduler: "slurm"}}, expected: "sbatch"},
		{name: "fake", opts: Opts{Override: profile.Profile{Scheduler: "fake"}}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.ConfigFile = filepath.Join(t.TempDir(), "missing.toml")
			tt.opts.User = "me"

			s, err := tt.opts.Scheduler()
			if err != nil {
				t.Fatal(err)
			}

			if got := SubmitCommand(s); got != tt.expected {
				t.Errorf("SubmitCommand() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestStateQuerier(t *testing.T) {
	tests := []struct {
		name      string
		scheduler string
		expected  batch.StateQuerier
	}{
		{name: "pbs", expected: &pbs.Client{}},
		{name: "fake", scheduler: "fake", expected: &pbs.Client{}},
		{name: "slurm", scheduler: "slurm", expected: &slurm.Client{}},
		{name: "bsub", scheduler: "bsub", expected: &bsub.Client{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Opts{
				ConfigFile: filepath.Join(t.TempDir(), "missing.toml"),
				User:       "me",
				Override:   profile.Profile{Scheduler: tt.scheduler, Project: "p"},
			}

			s, err := opts.Scheduler()
			if err != nil {
				t.Fatal(err)
			}

			if got := opts.StateQuerier(s); fmt.Sprintf("%T", got) != fmt.Sprintf("%T", tt.expected) {
				t.Errorf("StateQuerier() = %T, expected %T", got, tt.expected)
			}
		})
	}
}

func TestBooleanFlags(t *testing.T) {
	config := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(config, []byte(`
default_profile = "local"

[profiles.local]
scheduler = "fake"
tee = true
`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		tee  bool
		stop bool
	}{
		{name: "profile", tee: true},
		{name: "turned-off", args: []string{"--tee=false"}},
		{name: "no-value", args: []string{"--stop-at-first-failure"}, tee: true, stop: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts Opts

			cmd := NewCommand("pbskit", &opts)
			if err := cmd.PersistentFlags().Parse(append([]string{"--config", config, "--user", "me"}, tt.args...)); err != nil {
				t.Fatal(err)
			}

			s, err := opts.Scheduler()
			if err != nil {
				t.Fatal(err)
			}

			driver := s.(*fake.PBS)
			if driver.TeeOutput != tt.tee || driver.StopAtFirstFailure != tt.stop {
				t.Errorf("tee = %v, stop at first failure = %v, expected %v, %v", driver.TeeOutput, driver.StopAtFirstFailure, tt.tee, tt.stop)
			}
		})
	}
}

func TestLedgerPath(t *testing.T) {
	t.Setenv(compute.EnvLedger, "")

	opts := Opts{ConfigFile: "/x/pbskit/c.toml"}

	if got := opts.LedgerPath(); got != "/x/pbskit/ledger.db" {
		t.Errorf("LedgerPath() = %s", got)
	}
}
