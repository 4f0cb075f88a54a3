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

// Package pbs drives the Portable Batch System: it renders PBS scripts, submits them with qsub,
// and inspects or deletes jobs with qstat and qdel.
package pbs

import (
	"context"
	"fmt"
	"strings"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/launcher"
	"github.com/carv-ics-forth/pbskit/pkg/process"
	"github.com/pkg/errors"
)

// PBS creates and launches PBS jobs.
type PBS struct {
	launcher.Base

	// QueueName goes on the "#PBS -q" line.
	QueueName string

	// Model is the processor model on the select line, e.g. "bro". Empty means unset.
	Model string

	// Mem is the requested memory on the select line, with units, e.g. "245gb".
	Mem string

	// GroupList is the charge group, "#PBS -W group_list=".
	GroupList string

	// ArrayRange is the index range of a job array, "#PBS -J".
	ArrayRange string

	// MailOptions are the events that trigger mail, e.g. "bae".
	MailOptions string

	// MailList are the recipients of the mail.
	MailList string

	// DependencyType is the kind of dependency, e.g. "afterok".
	DependencyType string

	SubmitCmd string
	Runner    process.Runner
}

var _ launcher.Scheduler = (*PBS)(nil)

// Defaults of a PBS driver built without a preset.
const (
	DefaultQueue          = "K4-route"
	DefaultNCPUsPerNode   = 40
	DefaultQueueNodeLimit = 10
)

// New returns a PBS driver for the given queue. The jobs source launcher.DefaultProfileFile;
// use SetProfileFile to change it.
func New(queueName string, ncpusPerNode int, queueNodeLimit int, hours int) *PBS {
	p := &PBS{
		Base:           launcher.NewBase(ncpusPerNode, 0, queueNodeLimit, hours),
		QueueName:      queueName,
		DependencyType: "afterok",
		SubmitCmd:      "qsub",
	}

	p.WorkdirEnv = "$PBS_O_WORKDIR"
	p.Extension = "pbs"
	p.ProfileFile = launcher.DefaultProfileFile

	return p
}

// Directives returns the "#PBS" header lines of a job.
func (p *PBS) Directives(jobName string, dependency string) []string {
	lines := []string{
		"#PBS -N " + jobName,
		"#PBS -q " + p.QueueName,
		p.selectLine(),
		fmt.Sprintf("#PBS -l walltime=%d:00:00", p.Time),
		"#PBS -o " + jobName + "_pbs.log",
		"#PBS -j oe",
		"#PBS -r n",
	}

	return append(lines, p.optionalLines(dependency)...)
}

func (p *PBS) selectLine() string {
	var line strings.Builder

	fmt.Fprintf(&line, "#PBS -l select=%d:ncpus=%d", p.RequestedNodes, p.NCPUsPerNode)

	if p.NGPUsPerNode > 0 {
		fmt.Fprintf(&line, ":ngpus=%d", p.NGPUsPerNode)
	}

	fmt.Fprintf(&line, ":mpiprocs=%d", p.MPIProcs())

	if p.Mem != "" {
		line.WriteString(":mem=" + p.Mem)
	}

	if p.Model != "" {
		line.WriteString(":model=" + p.Model)
	}

	return line.String()
}

func (p *PBS) optionalLines(dependency string) []string {
	var lines []string

	if p.GroupList != "" {
		lines = append(lines, "#PBS -W group_list="+p.GroupList)
	}

	if p.ArrayRange != "" {
		lines = append(lines, "#PBS -J "+p.ArrayRange)
	}

	if p.MailOptions != "" {
		lines = append(lines, "#PBS -m "+p.MailOptions)
	}

	if p.MailList != "" {
		lines = append(lines, "#PBS -M "+p.MailList)
	}

	if dependency != "" {
		lines = append(lines, fmt.Sprintf("#PBS -W depend=%s:%s", p.DependencyType, dependency))
	}

	return lines
}

// SubmitScript runs qsub from within dir. When blocking, qsub returns once the job has finished.
func (p *PBS) SubmitScript(ctx context.Context, dir string, scriptFile string, blocking bool) (string, error) {
	var args []string
	if blocking {
		args = append(args, "-Wblock=true")
	}

	args = append(args, scriptFile)

	compute.DefaultLogger.Info(process.CommandLine(p.SubmitCmd, args...), "dir", dir)

	out, err := process.Or(p.Runner).Run(ctx, dir, p.SubmitCmd, args...)
	jobID := strings.TrimSpace(string(out))

	if err != nil {
		// with -Wblock=true, qsub exits with the exit status of the job.
		if blocking && jobID != "" && ctx.Err() == nil {
			compute.DefaultLogger.Info("Job has finished unsuccessfully", "jobID", jobID, "reason", err.Error())

			return jobID, nil
		}

		return "", errors.Wrap(err, "qsub submission error")
	}

	if jobID == "" {
		return "", errors.Wrapf(compute.ErrNoJobID, "qsub '%s'", scriptFile)
	}

	return jobID, nil
}

// Launch writes the script of the job and submits it.
func (p *PBS) Launch(ctx context.Context, req launcher.Request) (string, error) {
	return launcher.Submit(ctx, p, req)
}
