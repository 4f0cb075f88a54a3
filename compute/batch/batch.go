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

// Package batch launches a set of jobs that share the same resource request, optionally limiting
// how many of them are in the queue at the same time.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/launcher"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Job is a member of a batch. ID is empty until the job has been submitted.
type Job struct {
	Name string
	Body []string
	ID   string
}

// StateQuerier returns the scheduler state of a job, e.g. "Q", "R", "F", or "" if unknown.
type StateQuerier interface {
	JobState(ctx context.Context, jobID string) (string, error)
}

// Recorder keeps track of the submissions of a batch.
type Recorder interface {
	Submitted(ctx context.Context, batch string, jobName string, jobID string, dir string) error
	Observed(ctx context.Context, batch string, jobID string, state string) error
}

// activeStates are the states of jobs that still occupy the queue.
var activeStates = sets.New[string]("R", "Q", "H")

const (
	DefaultCheckFrequency = 30 * time.Second
	DefaultQueryWorkers   = 8
)

// Batch is a non-blocking batch of jobs.
type Batch struct {
	Name string
	Jobs []*Job

	Launcher launcher.Launcher
	States   StateQuerier

	// SeparateDirectories runs each job in a directory named after the job, under Root.
	SeparateDirectories bool
	Root                string

	// CheckFrequency is how often the states of the jobs are checked.
	CheckFrequency time.Duration

	// Limiter paces the submissions. Nil means no pacing.
	Limiter *rate.Limiter

	// Recorder is told about submissions and observed states. Nil means no recording.
	Recorder Recorder

	// Out receives the summaries of the job states.
	Out io.Writer

	// QueryWorkers bounds the concurrent state queries.
	QueryWorkers int
}

// New returns a batch that runs every job in its own directory under the working directory.
func New(name string, l launcher.Launcher, states StateQuerier, jobs []*Job) *Batch {
	return &Batch{
		Name:                name,
		Jobs:                jobs,
		Launcher:            l,
		States:              states,
		SeparateDirectories: true,
		Root:                ".",
		CheckFrequency:      DefaultCheckFrequency,
		Out:                 os.Stdout,
		QueryWorkers:        DefaultQueryWorkers,
	}
}

// JobDir returns the directory where the job is launched from.
func (b *Batch) JobDir(job *Job) string {
	if b.SeparateDirectories {
		return filepath.Join(b.Root, job.Name)
	}

	return b.Root
}

// CreateDirectories creates a directory for every job, named after the job. Existing directories are kept.
func (b *Batch) CreateDirectories() error {
	var merr *multierror.Error

	for _, job := range b.Jobs {
		dir := filepath.Join(b.Root, job.Name)

		if err := os.MkdirAll(dir, compute.JobDirectoryPermissions); err != nil {
			merr = multierror.Append(merr, errors.Wrapf(err, "cannot create dir '%s'", dir))
		}
	}

	return merr.ErrorOrNil()
}

// LaunchAll submits every job of the batch, and stores the ids in the jobs. If wait is set,
// it returns once none of the jobs is queued, running, or held.
func (b *Batch) LaunchAll(ctx context.Context, wait bool) error {
	if err := b.launch(ctx, b.Jobs); err != nil {
		return err
	}

	if wait {
		return b.WaitForAll(ctx)
	}

	return nil
}

// WaitForAll blocks until none of the jobs is queued, running, or held, and prints a summary of
// the states at every check.
func (b *Batch) WaitForAll(ctx context.Context) error {
	return b.poll(ctx, func(ctx context.Context) (bool, error) {
		states, err := b.states(ctx, b.Jobs)
		if err != nil {
			return false, err
		}

		b.PrintSummary(states)

		return countActive(states) == 0, nil
	})
}

// LaunchWithLimit submits the jobs in order, so that at most maxJobs of them are queued,
// running, or held at a time. It returns once all jobs have been submitted and have left the queue.
func (b *Batch) LaunchWithLimit(ctx context.Context, maxJobs int) error {
	if maxJobs < 1 {
		return errors.Wrapf(compute.ErrInvalidLimit, "got %d", maxJobs)
	}

	next := 0

	return b.poll(ctx, func(ctx context.Context) (bool, error) {
		states, err := b.states(ctx, b.Jobs[:next])
		if err != nil {
			return false, err
		}

		if active := countActive(states); active < maxJobs {
			end := min(len(b.Jobs), next+maxJobs-active)

			if err := b.launch(ctx, b.Jobs[next:end]); err != nil {
				return false, err
			}

			next = end
		}

		states, err = b.states(ctx, b.Jobs[:next])
		if err != nil {
			return false, err
		}

		b.PrintSummary(states)

		return next == len(b.Jobs) && countActive(states) == 0, nil
	})
}

// poll runs the condition immediately, and then every CheckFrequency until it is done.
func (b *Batch) poll(ctx context.Context, condition wait.ConditionWithContextFunc) error {
	interval := b.CheckFrequency
	if interval <= 0 {
		interval = DefaultCheckFrequency
	}

	if err := wait.PollUntilContextCancel(ctx, interval, true, condition); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return err
	}

	return nil
}

func (b *Batch) launch(ctx context.Context, jobs []*Job) error {
	for _, job := range jobs {
		if b.Limiter != nil {
			if err := b.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		dir := b.JobDir(job)

		jobID, err := b.Launcher.Launch(ctx, launcher.Request{
			Name:     job.Name,
			Body:     job.Body,
			Blocking: false,
			Dir:      dir,
		})
		if err != nil {
			return errors.Wrapf(err, "cannot launch job '%s' of batch '%s'", job.Name, b.Name)
		}

		job.ID = jobID

		if b.Recorder != nil {
			if err := b.Recorder.Submitted(ctx, b.Name, job.Name, jobID, dir); err != nil {
				compute.DefaultLogger.Error(err, "cannot record submission", "job", job.Name, "jobID", jobID)
			}
		}
	}

	return nil
}

// states queries the states of the jobs concurrently. The result follows the order of jobs.
func (b *Batch) states(ctx context.Context, jobs []*Job) ([]string, error) {
	states := make([]string, len(jobs))

	workers := b.QueryWorkers
	if workers <= 0 {
		workers = DefaultQueryWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		i, job := i, job

		g.Go(func() error {
			if job.ID == "" {
				return nil
			}

			state, err := b.States.JobState(gctx, job.ID)
			if err != nil {
				return errors.Wrapf(err, "cannot get the state of job '%s'", job.Name)
			}

			states[i] = state

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if b.Recorder != nil {
		for i, job := range jobs {
			if job.ID == "" {
				continue
			}

			if err := b.Recorder.Observed(ctx, b.Name, job.ID, states[i]); err != nil {
				compute.DefaultLogger.Error(err, "cannot record state", "jobID", job.ID)
			}
		}
	}

	return states, nil
}

func countActive(states []string) int {
	active := 0

	for _, state := range states {
		if activeStates.Has(state) {
			active++
		}
	}

	return active
}

// Summary counts the jobs of a batch per state.
type Summary struct {
	Queued      int
	Running     int
	Finished    int
	YetToSubmit int
	Other       int
}

// Summarize counts the observed states. Jobs without an observed state are yet to be submitted.
func Summarize(states []string, total int) Summary {
	var s Summary

	for _, state := range states {
		switch state {
		case "Q":
			s.Queued++
		case "R":
			s.Running++
		case "F":
			s.Finished++
		}
	}

	s.Other = len(states) - s.Queued - s.Running - s.Finished
	s.YetToSubmit = total - len(states)

	return s
}

// Write prints the summary the way it is shown while a batch runs.
func (s Summary) Write(w io.Writer, at time.Time) {
	fmt.Fprintf(w, "Job states at %s:\n", at.Format(time.RFC3339))
	fmt.Fprintf(w, "  Queued:        %d\n", s.Queued)
	fmt.Fprintf(w, "  Running:       %d\n", s.Running)
	fmt.Fprintf(w, "  Finished:      %d\n", s.Finished)

	if s.YetToSubmit > 0 {
		fmt.Fprintf(w, "  Yet to submit: %d\n", s.YetToSubmit)
	}

	fmt.Fprintf(w, "  Other:         %d\n", s.Other)
}

// PrintSummary writes the summary of the observed states to Out.
func (b *Batch) PrintSummary(states []string) {
	out := b.Out
	if out == nil {
		out = os.Stdout
	}

	Summarize(states, len(b.Jobs)).Write(out, time.Now())
}
