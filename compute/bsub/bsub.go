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

// Package bsub contains code for accessing compute resources via IBM Spectrum LSF.
package bsub

import (
	"context"
	"fmt"
	"regexp"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/launcher"
	"github.com/carv-ics-forth/pbskit/pkg/process"
	"github.com/pkg/errors"
)

// BSUB creates and launches LSF jobs.
type BSUB struct {
	launcher.Base

	// Project is charged for the submitted jobs.
	Project string

	// MailWhenComplete mails a job report when the job completes.
	MailWhenComplete bool

	SubmitCmd string
	Runner    process.Runner
}

var _ launcher.Scheduler = (*BSUB)(nil)

// Defaults of New.
const (
	DefaultNGPUsPerNode   = 6
	DefaultQueueNodeLimit = 1_000_000
	DefaultHours          = 72
)

// New returns an LSF driver that charges the given project.
func New(project string, ngpusPerNode int, queueNodeLimit int, hours int) *BSUB {
	b := &BSUB{
		Base:             launcher.NewBase(ngpusPerNode, ngpusPerNode, queueNodeLimit, hours),
		Project:          project,
		MailWhenComplete: true,
		SubmitCmd:        "bsub",
	}

	b.WorkdirEnv = "$LS_SUBCWD"
	b.Extension = "lsf"
	b.MPIExec = "jsrun"
	b.ProfileFile = launcher.DefaultProfileFile

	return b
}

// Directives returns the "#BSUB" header lines of a job.
func (b *BSUB) Directives(jobName string, dependency string) []string {
	lines := []string{
		"#BSUB -P " + b.Project,
		"#BSUB -J " + jobName,
		fmt.Sprintf("#BSUB -nnodes %d", b.RequestedNodes),
		fmt.Sprintf("#BSUB -W %d:00", b.Time),
	}

	if dependency != "" {
		lines = append(lines, "#BSUB -w ended("+dependency+")")
	}

	if b.MailWhenComplete {
		lines = append(lines, "#BSUB -N")
	}

	return lines
}

// MPICommand wraps command with jsrun, one resource set per GPU.
func (b *BSUB) MPICommand(command string, outputRoot string, opts launcher.MPIOptions) string {
	threads := opts.OpenMPThreads
	if threads <= 0 {
		threads = 1
	}

	return fmt.Sprintf("%s -n %d -a 1 -c %d -g 1 %s %s",
		b.MPIExec, b.RequestedNodes*b.NGPUsPerNode, threads, command, b.RedirectOutput(outputRoot+".out"))
}

var submittedJob = regexp.MustCompile(`Job <(?P<jid>\d+)> is submitted`)

// ParseJobID extracts the job id from the output of bsub, e.g. "Job <1983914> is submitted to queue <batch>."
func ParseJobID(out string) (string, error) {
	match := submittedJob.FindStringSubmatch(out)
	if match == nil {
		return "", errors.Wrapf(compute.ErrNoJobID, "bsub output '%s'", out)
	}

	return match[1], nil
}

// SubmitScript runs bsub from within dir. LSF offers no blocking submission here, so blocking
// only emits a warning.
func (b *BSUB) SubmitScript(ctx context.Context, dir string, scriptFile string, blocking bool) (string, error) {
	if blocking {
		compute.DefaultLogger.Info("Warning: Blocking for bsub not implemented", "script", scriptFile)
	}

	compute.DefaultLogger.Info(process.CommandLine(b.SubmitCmd, scriptFile), "dir", dir)

	out, err := process.Or(b.Runner).Run(ctx, dir, b.SubmitCmd, scriptFile)
	if err != nil {
		return "", errors.Wrapf(err, "bsub submission error. out : '%s'", out)
	}

	return ParseJobID(string(out))
}

// Launch writes the script of the job and submits it.
func (b *BSUB) Launch(ctx context.Context, req launcher.Request) (string, error) {
	return launcher.Submit(ctx, b, req)
}
