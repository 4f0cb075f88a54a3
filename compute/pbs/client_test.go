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

package pbs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/pkg/errors"
)

const userJobsOutput = `
pbssrv1:
                                                            Req'd  Req'd   Elap
Job ID          Username Queue    Jobname    SessID NDS TSK Memory Time  S Time
--------------- -------- -------- ---------- ------ --- --- ------ ----- - -----
4259576.pbssrv1 kejacob1 K4-stand oat_steady    --   10 400 96000m 72:00 Q   --
4259577.pbssrv1 kejacob1 K3a-stan sample0     22053   1  16   31gb 72:00 R 00:10
4259578.pbssrv1 kejacob1 K4-stand sample1       --    1  40   31gb 72:00 Q   --
`

func qstatJobs(states map[string]string) func(name string, args []string) ([]byte, error) {
	return func(name string, args []string) ([]byte, error) {
		if len(args) == 2 && args[0] == "-u" {
			return []byte(userJobsOutput), nil
		}

		id := args[len(args)-1]

		state, ok := states[id]
		if !ok {
			return nil, errors.Errorf("qstat: Unknown Job Id %s", id)
		}

		return []byte("Job Id: " + id + "\n" +
			"    Job_Name = name" + id + "\n" +
			"    job_state = " + state + "\n" +
			"    queue = K4-standard\n" +
			"    Resource_List.select = 1:ncpus=40:mpiprocs=40\n" +
			"    Resource_List.walltime = 72:00:00\n" +
			"    Variable_List = PBS_O_WORKDIR=/work/" + id + ",PBS_O_QUEUE=K4-route\n"), nil
	}
}

func TestJobState(t *testing.T) {
	c := NewClient()
	c.Runner = &fakeRunner{answer: qstatJobs(map[string]string{"1": "R", "2": "F"})}

	tests := []struct {
		id       string
		expected string
	}{
		{id: "1", expected: "R"},
		{id: "2", expected: "F"},
		{id: "3", expected: ""},
		{id: "", expected: ""},
		{id: "FakePBS.0", expected: StateFinished},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			state, err := c.JobState(context.Background(), tt.id)
			if err != nil {
				t.Fatal(err)
			}

			if state != tt.expected {
				t.Errorf("JobState(%q) = %q, expected %q", tt.id, state, tt.expected)
			}
		})
	}
}

func TestJobUnknown(t *testing.T) {
	c := NewClient()
	c.Runner = &fakeRunner{answer: qstatJobs(nil)}

	job, err := c.Job(context.Background(), "42")
	if !errors.Is(err, compute.ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}

	if job.Workdir != "" {
		t.Errorf("workdir = %q", job.Workdir)
	}
}

func TestUserJobs(t *testing.T) {
	runner := &fakeRunner{answer: qstatJobs(map[string]string{"4259576": "Q", "4259577": "R"})}

	c := NewClient()
	c.Runner = runner

	ids, err := c.UserJobIDs(context.Background(), "kejacob1")
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(ids, []string{"4259576", "4259577", "4259578"}) {
		t.Errorf("ids = %v", ids)
	}

	jobs, err := c.UserJobs(context.Background(), "kejacob1")
	if err != nil {
		t.Fatal(err)
	}

	// 4259578 finished between the listing and the query.
	if len(jobs) != 2 || jobs[0].Workdir != "/work/4259576" || jobs[1].State != StateRunning {
		t.Errorf("unexpected jobs: %+v", jobs)
	}

	if _, err := c.UserJobIDs(context.Background(), ""); err == nil {
		t.Error("expected an error for an empty user")
	}
}

func TestDelete(t *testing.T) {
	runner := &fakeRunner{}

	c := NewClient()
	c.Runner = runner

	if _, err := c.Delete(context.Background(), "4259576"); err != nil {
		t.Fatal(err)
	}

	if runner.calls[0].name != "qdel" || !reflect.DeepEqual(runner.calls[0].args, []string{"4259576"}) {
		t.Errorf("unexpected call: %+v", runner.calls[0])
	}
}

func TestFilter(t *testing.T) {
	jobs := []*Job{
		{ID: "100", Name: "sample0", Queue: "K4-standard"},
		{ID: "101", Name: "sample1", Queue: "K3a-standard"},
		{ID: "102", Name: "other", Queue: "K4-standard"},
		{ID: "103.pbssrv1", Name: "sample3", Queue: "K4-standard"},
	}

	tests := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{name: "none", expected: []string{"100", "101", "102", "103.pbssrv1"}},
		{name: "id-range", filter: Filter{MinID: 101, MaxID: 103}, expected: []string{"101", "102", "103.pbssrv1"}},
		{name: "half-range-is-ignored", filter: Filter{MinID: 101}, expected: []string{"100", "101", "102", "103.pbssrv1"}},
		{name: "queue", filter: Filter{Queue: "K4-standard"}, expected: []string{"100", "102", "103.pbssrv1"}},
		{name: "name", filter: Filter{NameSubstring: "sample"}, expected: []string{"100", "101", "103.pbssrv1"}},
		{name: "combined", filter: Filter{MinID: 100, MaxID: 102, Queue: "K4-standard", NameSubstring: "sample"}, expected: []string{"100"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, job := range tt.filter.Apply(jobs) {
				got = append(got, job.ID)
			}

			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Apply() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestTail(t *testing.T) {
	file := filepath.Join(t.TempDir(), "job.out")
	if err := os.WriteFile(file, []byte("step 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	queries := 0

	c := NewClient()
	c.Runner = &fakeRunner{answer: func(name string, args []string) ([]byte, error) {
		queries++
		if queries == 1 {
			f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, err
			}
			defer f.Close()

			if _, err := f.WriteString("step 2\n"); err != nil {
				return nil, err
			}

			return []byte("job_state = R\n"), nil
		}

		return []byte("job_state = F\n"), nil
	}}

	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Tail(ctx, "42", file, &out, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if out.String() != "step 1\nstep 2\n" {
		t.Errorf("tail = %q", out.String())
	}
}

func TestTailFakeJob(t *testing.T) {
	file := filepath.Join(t.TempDir(), "job.out")
	if err := os.WriteFile(file, []byte("done\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer

	if err := NewClient().Tail(context.Background(), "FakePBS.0", file, &out, 0); err != nil {
		t.Fatal(err)
	}

	if out.String() != "done\n" {
		t.Errorf("tail = %q", out.String())
	}
}
