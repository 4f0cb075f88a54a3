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

// Package slurm contains code for accessing compute resources via Slurm.
package slurm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/launcher"
	"github.com/carv-ics-forth/pbskit/pkg/process"
	"github.com/pkg/errors"
)

// SLURM creates and launches Slurm jobs.
type SLURM struct {
	launcher.Base

	// QueueName is the partition of the job, "#SBATCH --partition".
	QueueName string

	// Account is charged for the job. Empty means the default account.
	Account string

	// Mem is the requested memory with units, e.g. "200G".
	Mem string

	ArrayRange  string
	MailOptions string
	MailList    string

	// DependencyType is the kind of dependency, e.g. "afterok".
	DependencyType string

	// Nodelist pins the job to specific nodes.
	Nodelist string

	SubmitCmd string
	Runner    process.Runner
}

var _ launcher.Scheduler = (*SLURM)(nil)

// Defaults of New.
const (
	DefaultQueue          = "normal"
	DefaultNCPUsPerNode   = 64
	DefaultQueueNodeLimit = 30
	DefaultHours          = 24
)

// New returns a Slurm driver for the given partition.
func New(queueName string, ncpusPerNode int, queueNodeLimit int, hours int) *SLURM {
	s := &SLURM{
		Base:           launcher.NewBase(ncpusPerNode, 0, queueNodeLimit, hours),
		QueueName:      queueName,
		DependencyType: "afterok",
		SubmitCmd:      "sbatch",
	}

	s.WorkdirEnv = "$SLURM_SUBMIT_DIR"
	s.Extension = "slurm"
	s.ProfileFile = launcher.DefaultProfileFile

	return s
}

// Directives returns the "#SBATCH" header lines of a job.
func (s *SLURM) Directives(jobName string, dependency string) []string {
	lines := []string{
		"--job-name=" + jobName,
		"--partition=" + s.QueueName,
		fmt.Sprintf("--nodes=%d", s.RequestedNodes),
		fmt.Sprintf("--ntasks-per-node=%d", s.NCPUsPerNode),
		fmt.Sprintf("--time=%d:00:00", s.Time),
		"--output=qlog_" + jobName,
		"--error=err_" + jobName,
		"--no-requeue",
	}

	if s.Account != "" {
		lines = append(lines, "--account="+s.Account)
	}

	if s.ArrayRange != "" {
		lines = append(lines, "--array="+s.ArrayRange)
	}

	if s.MailOptions != "" {
		lines = append(lines, "--mail-type="+s.MailOptions)
	}

	if s.MailList != "" {
		lines = append(lines, "--mail-user="+s.MailList)
	}

	if dependency != "" {
		lines = append(lines, fmt.Sprintf("--dependency=%s:%s", s.DependencyType, dependency))
	}

	if s.Nodelist != "" {
		lines = append(lines, "--nodelist="+s.Nodelist)
	}

	for i, line := range lines {
		lines[i] = "#SBATCH " + line
	}

	return lines
}

var submittedJob = regexp.MustCompile(`Submitted batch job (?P<jid>\d+)`)

// ParseJobID extracts the job id from the output of sbatch. Output in an unexpected format,
// e.g. with --parsable, is returned as is.
func ParseJobID(out string) string {
	if match := submittedJob.FindStringSubmatch(out); match != nil {
		return match[1]
	}

	return strings.TrimSpace(out)
}

// SubmitScript runs sbatch from within dir. When blocking, sbatch returns once the job has finished.
func (s *SLURM) SubmitScript(ctx context.Context, dir string, scriptFile string, blocking bool) (string, error) {
	var args []string
	if blocking {
		args = append(args, "-W")
	}

	args = append(args, scriptFile)

	compute.DefaultLogger.Info(process.CommandLine(s.SubmitCmd, args...), "dir", dir)

	out, err := process.Or(s.Runner).Run(ctx, dir, s.SubmitCmd, args...)
	jobID := ParseJobID(string(out))

	if err != nil {
		// with -W, sbatch exits with the exit code of the job.
		if blocking && jobID != "" && ctx.Err() == nil {
			compute.DefaultLogger.Info("Job has finished unsuccessfully", "jobID", jobID, "reason", err.Error())

			return jobID, nil
		}

		return "", errors.Wrapf(err, "sbatch submission error. out : '%s'", out)
	}

	if jobID == "" {
		return "", errors.Wrapf(compute.ErrNoJobID, "sbatch '%s'", scriptFile)
	}

	return jobID, nil
}

// Launch writes the script of the job and submits it.
func (s *SLURM) Launch(ctx context.Context, req launcher.Request) (string, error) {
	return launcher.Submit(ctx, s, req)
}
