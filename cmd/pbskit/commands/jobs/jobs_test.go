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

package jobs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/carv-ics-forth/pbskit/cmd/pbskit/commands/root"
	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/pbs"
	"github.com/carv-ics-forth/pbskit/pkg/process"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTestRoot(t *testing.T, ctx context.Context) (*cobra.Command, *bytes.Buffer) {
	var (
		opts root.Opts
		out  bytes.Buffer
	)

	cmd := root.NewCommand("pbskit", &opts)
	cmd.AddCommand(
		NewSubmitJobCmd(ctx, &opts),
		NewWriteJobCmd(&opts),
		NewMPICmd(&opts),
		NewBatchCmd(ctx, &opts),
		NewPresetsCmd(),
	)
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	return cmd, &out
}

func run(t *testing.T, args ...string) (string, error) {
	cmd, out := newTestRoot(t, context.Background())

	config := filepath.Join(t.TempDir(), "missing.toml")
	cmd.SetArgs(append([]string{"--config", config, "--user", "tester"}, args...))

	err := cmd.Execute()

	return out.String(), err
}

func TestSubmitFake(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "--scheduler", "fake", "submit", "hello", "--dir", dir, "-c", "echo hi > hello.txt", "-c", "false")
	if err != nil {
		t.Fatal(err)
	}

	if out != "sh -c 'echo hi > hello.txt'\nsh -c false\nFakePBS.1\n" {
		t.Errorf("unexpected output %q", out)
	}

	if content, err := os.ReadFile(filepath.Join(dir, "hello.txt")); err != nil || string(content) != "hi\n" {
		t.Errorf("the body did not run in the job directory: %q, %v", content, err)
	}
}

func TestSubmitEmptyBody(t *testing.T) {
	if _, err := run(t, "--scheduler", "fake", "submit", "hello"); err == nil || !strings.Contains(err.Error(), "empty job body") {
		t.Errorf("expected an empty body error, got %v", err)
	}
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "preset",
			args:     []string{"--preset", "k4", "--nodes", "2"},
			expected: []string{"#PBS -N sample\n", "#PBS -q K4-route\n", "#PBS -l select=2:ncpus=40:mpiprocs=40\n", "./solver\n"},
		},
		{
			name:     "no-profile",
			expected: []string{"#PBS -q K4-route\n", "#PBS -l select=1:ncpus=40:mpiprocs=40\n", "source ~/.bashrc\n", "./solver\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := filepath.Join(t.TempDir(), "job.pbs")

			if _, err := run(t, append(tt.args, "write", script, "sample", "-c", "./solver")...); err != nil {
				t.Fatal(err)
			}

			content, err := os.ReadFile(script)
			if err != nil {
				t.Fatal(err)
			}

			for _, line := range tt.expected {
				if !strings.Contains(string(content), line) {
					t.Errorf("script misses %q:\n%s", line, content)
				}
			}
		})
	}
}

func TestMPI(t *testing.T) {
	out, err := run(t, "--preset", "k4", "--nodes", "2", "mpi", "./solver", "run1", "--openmp-threads", "4")
	if err != nil {
		t.Fatal(err)
	}

	expected := "OMP_NUM_THREADS=4 OMP_PLACES=cores OMP_PROC_BIND=close mpiexec --npernode 10 ./solver &> run1.out\n"
	if out != expected {
		t.Errorf("mpi = %q, expected %q", out, expected)
	}
}

func TestBatchRunFake(t *testing.T) {
	dir := t.TempDir()

	manifest := filepath.Join(dir, "sweep.toml")
	if err := os.WriteFile(manifest, []byte(`
name = "sweep"

[[jobs]]
name = "a"
commands = ["touch done"]

[[jobs]]
name = "b"
commands = ["touch done"]
`), 0o644); err != nil {
		t.Fatal(err)
	}

	ledgerFile := filepath.Join(dir, "ledger.db")

	out, err := run(t, "--scheduler", "fake", "batch", "run", manifest,
		"--root", dir, "--max-jobs", "1", "--check-frequency", "1ms", "--ledger", ledgerFile)
	if err != nil {
		t.Fatal(err)
	}

	for _, job := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(dir, job, "done")); err != nil {
			t.Errorf("job %s did not run in its directory: %v", job, err)
		}
	}

	if !strings.Contains(out, "  Finished:      2\n") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = run(t, "batch", "status", "--ledger", ledgerFile)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "FakePBS.0") || !strings.Contains(out, "  Finished:      2\n") {
		t.Errorf("unexpected status:\n%s", out)
	}
}

func writeManifest(t *testing.T, dir string) string {
	manifest := filepath.Join(dir, "sweep.toml")
	if err := os.WriteFile(manifest, []byte(`
name = "sweep"

[[jobs]]
name = "a"
commands = ["./solver a"]

[[jobs]]
name = "b"
commands = ["./solver b"]
`), 0o644); err != nil {
		t.Fatal(err)
	}

	return manifest
}

func TestBatchRunSLURM(t *testing.T) {
	var (
		mu       sync.Mutex
		lastID   int
		queries  = map[string]int{}
		commands []string
	)

	defer func(r process.Runner) { process.DefaultRunner = r }(process.DefaultRunner)

	process.DefaultRunner = process.RunnerFunc(func(_ context.Context, _ string, name string, args ...string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()

		switch name {
		case "sbatch":
			lastID++
			commands = append(commands, name)

			return []byte(fmt.Sprintf("Submitted batch job %d\n", lastID)), nil
		case "squeue":
			id := args[len(args)-1]
			queries[id]++

			switch queries[id] {
			case 1:
				return []byte("PD\n"), nil
			case 2:
				return []byte("R\n"), nil
			default:
				return nil, nil
			}
		default:
			return nil, errors.Errorf("unexpected command %s", name)
		}
	})

	dir := t.TempDir()

	out, err := run(t, "--scheduler", "slurm", "batch", "run", writeManifest(t, dir),
		"--root", dir, "--max-jobs", "1", "--check-frequency", "1ms", "--no-ledger")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "  Finished:      2\n") {
		t.Errorf("unexpected output:\n%s", out)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(commands) != 2 || queries["1"] < 3 || queries["2"] < 3 {
		t.Errorf("submissions = %v, queries = %v", commands, queries)
	}
}

func TestBatchLedgerNextToConfig(t *testing.T) {
	t.Setenv(compute.EnvLedger, "")

	dir := t.TempDir()

	if _, err := run(t, "--config", filepath.Join(dir, "config.toml"), "--scheduler", "fake",
		"batch", "run", writeManifest(t, dir), "--root", dir, "--wait", "--check-frequency", "1ms"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "ledger.db")); err != nil {
		t.Errorf("the ledger is not next to the configuration: %v", err)
	}

	out, err := run(t, "--config", filepath.Join(dir, "config.toml"), "batch", "status")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "  Finished:      2\n") {
		t.Errorf("unexpected status:\n%s", out)
	}
}

func TestPresets(t *testing.T) {
	out, err := run(t, "presets")
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"k3a", "k5_a100_80", "cf1", "nas", "mil_a100"} {
		if !strings.Contains(out, name) {
			t.Errorf("presets miss %s:\n%s", name, out)
		}
	}
}

func TestBody(t *testing.T) {
	bodyFile := filepath.Join(t.TempDir(), "body.txt")
	if err := os.WriteFile(bodyFile, []byte("module load mpi\n\n./solver  \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		options  BodyOptions
		expected []string
		wantErr  bool
	}{
		{name: "commands", options: BodyOptions{Commands: []string{"ls"}}, expected: []string{"ls"}},
		{name: "file", options: BodyOptions{Commands: []string{"cd run"}, BodyFile: bodyFile}, expected: []string{"cd run", "module load mpi", "./solver"}},
		{name: "empty", options: BodyOptions{}, wantErr: true},
		{name: "missing-file", options: BodyOptions{BodyFile: bodyFile + ".missing"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := tt.options.Body()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Body() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr && !reflect.DeepEqual(body, tt.expected) {
				t.Errorf("Body() = %v, expected %v", body, tt.expected)
			}
		})
	}
}

func TestDeleteFilter(t *testing.T) {
	tests := []struct {
		name     string
		options  JobDeleteOptions
		expected pbs.Filter
		wantErr  bool
	}{
		{name: "none", expected: pbs.Filter{}},
		{name: "range", options: JobDeleteOptions{IDRange: "100, 200", Queue: "K4-route"}, expected: pbs.Filter{MinID: 100, MaxID: 200, Queue: "K4-route"}},
		{name: "name", options: JobDeleteOptions{Name: "sweep"}, expected: pbs.Filter{NameSubstring: "sweep"}},
		{name: "one-bound", options: JobDeleteOptions{IDRange: "100"}, wantErr: true},
		{name: "not-a-number", options: JobDeleteOptions{IDRange: "a,b"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := tt.options.Filter()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Filter() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr && f != tt.expected {
				t.Errorf("Filter() = %+v, expected %+v", f, tt.expected)
			}
		})
	}
}

func TestUserConfirms(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
		prompts  int
		wantErr  bool
	}{
		{name: "yes", input: "yes\n", expected: true, prompts: 1},
		{name: "upper-y", input: "Y\n", expected: true, prompts: 1},
		{name: "no", input: "n\n", expected: false, prompts: 1},
		{name: "retry", input: "maybe\n\nno\n", expected: false, prompts: 3},
		{name: "eof", input: "maybe\n", prompts: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			ok, err := UserConfirms(strings.NewReader(tt.input), &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UserConfirms() error = %v, wantErr %v", err, tt.wantErr)
			}

			if ok != tt.expected {
				t.Errorf("UserConfirms() = %v, expected %v", ok, tt.expected)
			}

			if prompts := strings.Count(out.String(), "[y/n]"); prompts != tt.prompts {
				t.Errorf("asked %d times, expected %d", prompts, tt.prompts)
			}
		})
	}
}

func TestPrintJobs(t *testing.T) {
	tests := []struct {
		name     string
		jobs     []*pbs.Job
		expected string
		found    bool
	}{
		{name: "none", expected: "No active jobs found for user with specified filters\n"},
		{
			name:     "one",
			jobs:     []*pbs.Job{{ID: "101.pbssrv1", Name: "a", Queue: "q"}},
			expected: "Found the following jobs:\n------------------------\nJob: id = 101.pbssrv1, name = a, queue: q\n",
			found:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			if found := PrintJobs(&out, tt.jobs); found != tt.found {
				t.Errorf("PrintJobs() = %v, expected %v", found, tt.found)
			}

			if out.String() != tt.expected {
				t.Errorf("output = %q, expected %q", out.String(), tt.expected)
			}
		})
	}
}

func TestDeleteJobs(t *testing.T) {
	var deleted []string

	client := pbs.NewClient()
	client.Runner = process.RunnerFunc(func(_ context.Context, _ string, name string, args ...string) ([]byte, error) {
		deleted = append(deleted, name+" "+strings.Join(args, " "))

		return nil, nil
	})

	var out bytes.Buffer

	jobs := []*pbs.Job{{ID: "101.pbssrv1", Name: "a", Queue: "q"}, {ID: "102.pbssrv1", Name: "b", Queue: "q"}}

	if !PrintJobs(&out, jobs) {
		t.Fatal("PrintJobs() reported no jobs")
	}

	if err := DeleteJobs(context.Background(), client, &out, jobs); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(deleted, []string{"qdel 101.pbssrv1", "qdel 102.pbssrv1"}) {
		t.Errorf("deleted = %v", deleted)
	}

	if !strings.Contains(out.String(), "Job: id = 102.pbssrv1, name = b, queue: q\n") {
		t.Errorf("unexpected listing:\n%s", out.String())
	}
}
