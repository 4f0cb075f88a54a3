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
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/pkg/errors"
)

// FakeIDPrefix marks the ids of jobs that ran locally instead of through PBS.
const FakeIDPrefix = "FakePBS"

// Job states reported by qstat.
const (
	StateQueued   = "Q"
	StateRunning  = "R"
	StateHeld     = "H"
	StateFinished = "F"
)

// Job holds the attributes of a submitted job, as reported by "qstat -xf".
type Job struct {
	ID    string
	Name  string
	Queue string
	State string

	// Workdir is the value of $PBS_O_WORKDIR.
	Workdir string

	// Model, RequestedNodes and NCPUsPerNode come from the select line.
	Model          string
	RequestedNodes int
	NCPUsPerNode   int

	// ExitStatus is nil until the job has finished.
	ExitStatus *int

	WalltimeRequested time.Duration

	// Hostname, WalltimeUsed and WalltimeRemaining are known once the job has left the queue.
	Hostname          string
	WalltimeUsed      *time.Duration
	WalltimeRemaining *time.Duration
}

// IsFakeID reports whether the job ran locally instead of through PBS.
func IsFakeID(jobID string) bool {
	return strings.Contains(jobID, FakeIDPrefix)
}

// IDNumber returns the numeric part of a job id, e.g. 4259576 for "4259576.pbssrv1".
func IDNumber(jobID string) (int, error) {
	digits := strings.SplitN(strings.TrimSpace(jobID), ".", 2)[0]

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, errors.Wrapf(err, "job id '%s' is not numeric", jobID)
	}

	return n, nil
}

// ParseAttributes converts the "key = value" lines of "qstat -xf" into a map.
// Lines starting with a tab continue the value of the previous attribute.
func ParseAttributes(out []byte) map[string]string {
	attributes := make(map[string]string)

	var lastKey string

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.HasPrefix(line, "\t") {
			if lastKey != "" {
				attributes[lastKey] += strings.TrimRight(line[1:], " ")
			}

			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			lastKey = ""
			continue
		}

		lastKey = strings.TrimSpace(key)
		attributes[lastKey] = strings.TrimSpace(value)
	}

	return attributes
}

// ParseJob returns the job described by the output of "qstat -xf". If PBS does not know the job,
// the job has empty attributes and the error is ErrUnknownJob.
func ParseJob(jobID string, out []byte) (*Job, error) {
	job := &Job{ID: jobID}

	if bytes.Contains(out, []byte("Unknown Job Id")) {
		return job, errors.Wrapf(compute.ErrUnknownJob, "'%s'", jobID)
	}

	attributes := ParseAttributes(out)

	job.Name = attributes["Job_Name"]
	job.Queue = attributes["queue"]
	job.State = attributes["job_state"]
	job.Workdir = parseWorkdir(attributes["Variable_List"])

	if err := job.parseSelect(attributes["Resource_List.select"]); err != nil {
		return job, err
	}

	if status, ok := attributes["Exit_status"]; ok {
		code, err := strconv.Atoi(status)
		if err != nil {
			return job, errors.Wrapf(err, "invalid exit status '%s'", status)
		}

		job.ExitStatus = &code
	}

	if walltime, ok := attributes["Resource_List.walltime"]; ok {
		requested, err := ParseWalltime(walltime)
		if err != nil {
			return job, err
		}

		job.WalltimeRequested = requested
	}

	if job.State == StateQueued {
		return job, nil
	}

	job.Hostname = strings.SplitN(attributes["exec_host"], "/", 2)[0]

	if walltime, ok := attributes["resources_used.walltime"]; ok {
		used, err := ParseWalltime(walltime)
		if err != nil {
			return job, err
		}

		remaining := job.WalltimeRequested - used
		job.WalltimeUsed = &used
		job.WalltimeRemaining = &remaining
	}

	return job, nil
}

func parseWorkdir(variables string) string {
	_, after, found := strings.Cut(variables, "PBS_O_WORKDIR=")
	if !found {
		return ""
	}

	return strings.SplitN(after, ",", 2)[0]
}

// parseSelect reads a select statement such as "2:ncpus=40:mpiprocs=40:model=sky_ele".
func (j *Job) parseSelect(selection string) error {
	if selection == "" {
		return nil
	}

	chunks := strings.Split(selection, ":")

	nodes, err := strconv.Atoi(chunks[0])
	if err != nil {
		return errors.Wrapf(err, "invalid select statement '%s'", selection)
	}

	j.RequestedNodes = nodes

	for _, chunk := range chunks[1:] {
		key, value, _ := strings.Cut(chunk, "=")

		switch key {
		case "ncpus":
			ncpus, err := strconv.Atoi(value)
			if err != nil {
				return errors.Wrapf(err, "invalid select statement '%s'", selection)
			}

			j.NCPUsPerNode = ncpus
		case "model":
			j.Model = value
		}
	}

	return nil
}

// ParseWalltime converts "hh:mm:ss" into a duration.
func ParseWalltime(walltime string) (time.Duration, error) {
	fields := strings.Split(strings.TrimSpace(walltime), ":")
	if len(fields) != 3 {
		return 0, errors.Errorf("invalid walltime '%s'", walltime)
	}

	var seconds int

	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid walltime '%s'", walltime)
		}

		seconds = seconds*60 + n
	}

	return time.Duration(seconds) * time.Second, nil
}

// fakeJob returns the job of a local run. Its id carries the number of failed commands.
func fakeJob(jobID string) (*Job, error) {
	parts := strings.Split(jobID, ".")

	failures, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return nil, errors.Wrapf(err, "invalid local job id '%s'", jobID)
	}

	return &Job{ID: jobID, State: StateFinished, ExitStatus: &failures}, nil
}
