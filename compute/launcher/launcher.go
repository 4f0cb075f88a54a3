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

// Package launcher holds the parts shared by every batch scheduler dialect: the resource request,
// the MPI command line, and the job script layout.
package launcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/pkg/errors"
)

// Base is the resource request and script conventions common to all dialects.
type Base struct {
	// Hashbang sets the shell of the script. If empty, "#!/usr/bin/env <Shell>" is used.
	Hashbang string

	// Shell is the shell flavor of the job, e.g. bash or tcsh.
	Shell string

	// RequestedNodes is the number of compute nodes. Use SetRequestedNodes to honor QueueNodeLimit.
	RequestedNodes int

	NCPUsPerNode   int
	NGPUsPerNode   int
	QueueNodeLimit int

	// MPIProcsPerNode defaults to NCPUsPerNode when zero.
	MPIProcsPerNode int

	// Time is the requested walltime in hours.
	Time int

	// ProfileFile is sourced at the start of the job. Use SetProfileFile to validate it.
	ProfileFile string

	// TeeOutput redirects the output of MPI commands through tee.
	TeeOutput bool

	// MPIExec is the MPI launcher: mpiexec, mpirun, mpiexec_mpt, jsrun, etc.
	MPIExec string

	// WorkdirEnv is the variable holding the submission directory inside the job.
	WorkdirEnv string

	// Extension is the suffix of the job scripts, without the dot.
	Extension string
}

// DefaultProfileFile is sourced by the jobs of every dialect unless told otherwise.
const DefaultProfileFile = "~/.bashrc"

// NewBase returns a Base with the defaults shared by all dialects.
func NewBase(ncpusPerNode, ngpusPerNode, queueNodeLimit, hours int) Base {
	return Base{
		Shell:          "bash",
		RequestedNodes: 1,
		NCPUsPerNode:   ncpusPerNode,
		NGPUsPerNode:   ngpusPerNode,
		QueueNodeLimit: queueNodeLimit,
		Time:           hours,
		MPIExec:        "mpiexec",
	}
}

// Config returns the shared settings, so that Base satisfies part of the Dialect interface.
func (b *Base) Config() *Base {
	return b
}

// SetRequestedNodes sets the number of nodes, clamped to the node limit of the queue.
func (b *Base) SetRequestedNodes(nodes int) {
	if b.QueueNodeLimit > 0 && nodes > b.QueueNodeLimit {
		nodes = b.QueueNodeLimit
	}

	b.RequestedNodes = nodes
}

// SetProfileFile accepts either an empty name, or the name of an existing file.
// On error the previous value is kept.
func (b *Base) SetProfileFile(profile string) error {
	if profile != "" {
		info, err := os.Stat(compute.ExpandUser(profile))
		if err != nil || !info.Mode().IsRegular() {
			return errors.Wrapf(compute.ErrProfileNotFound, "'%s'", profile)
		}
	}

	b.ProfileFile = profile

	return nil
}

// MPIProcs returns the number of MPI processes per node.
func (b *Base) MPIProcs() int {
	if b.MPIProcsPerNode == 0 {
		return b.NCPUsPerNode
	}

	return b.MPIProcsPerNode
}

// HashbangLine returns the first line of the job script.
func (b *Base) HashbangLine() string {
	if b.Hashbang != "" {
		return b.Hashbang
	}

	return "#!/usr/bin/env " + b.Shell
}

// RedirectOutput returns the shell suffix that routes stdout and stderr of a command to file.
func (b *Base) RedirectOutput(file string) string {
	if b.TeeOutput {
		return "2>&1 | tee " + file
	}

	if b.Shell == "tcsh" {
		return ">& " + file
	}

	return "&> " + file
}

/************************************************************

			Dialects and Launchers

************************************************************/

// Dialect knows how a particular scheduler expects its scripts and how to hand them over.
type Dialect interface {
	Config() *Base

	// Directives returns the scheduler header lines, without the hashbang.
	// An empty dependency means no dependency.
	Directives(jobName string, dependency string) []string

	// SubmitScript hands the script to the scheduler from within dir, and returns the job id.
	SubmitScript(ctx context.Context, dir string, scriptFile string, blocking bool) (string, error)
}

// Request describes a single job launch.
type Request struct {
	Name string
	Body []string

	// Blocking waits until the job has finished, if the scheduler supports it.
	Blocking bool

	// Dependency lists the jobs this one depends on, in the scheduler's syntax.
	Dependency string

	// Dir is the directory where the script is written and submitted from.
	Dir string
}

// Launcher creates and launches jobs, and returns their id.
type Launcher interface {
	Launch(ctx context.Context, req Request) (string, error)
}

// Scheduler is a fully featured dialect.
type Scheduler interface {
	Dialect
	Launcher

	MPICommand(command string, outputRoot string, opts MPIOptions) string
}

// ScriptFile returns the file name of the script for the given job.
func ScriptFile(d Dialect, jobName string) string {
	return jobName + "." + d.Config().Extension
}

// Submit writes the job script into req.Dir, and submits it.
func Submit(ctx context.Context, d Dialect, req Request) (string, error) {
	scriptFile := ScriptFile(d, req.Name)

	if err := WriteJobFile(d, filepath.Join(req.Dir, scriptFile), req.Name, req.Body, req.Dependency); err != nil {
		return "", err
	}

	jobID, err := d.SubmitScript(ctx, req.Dir, scriptFile, req.Blocking)
	if err != nil {
		return "", errors.Wrapf(err, "cannot submit job '%s'", req.Name)
	}

	compute.DefaultLogger.Info(" * Job has been submitted", "job", req.Name, "jobID", jobID)

	return jobID, nil
}
