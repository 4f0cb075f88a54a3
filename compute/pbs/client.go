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
	"context"
	"regexp"
	"strings"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/pkg/process"
	"github.com/pkg/errors"
)

// Client queries and deletes PBS jobs.
type Client struct {
	StatCmd   string
	DeleteCmd string
	Runner    process.Runner
}

// NewClient returns a client that uses qstat and qdel.
func NewClient() *Client {
	return &Client{
		StatCmd:   "qstat",
		DeleteCmd: "qdel",
	}
}

// Job returns the current attributes of a job. Jobs unknown to PBS have empty attributes,
// and the error is ErrUnknownJob.
func (c *Client) Job(ctx context.Context, jobID string) (*Job, error) {
	if IsFakeID(jobID) {
		return fakeJob(jobID)
	}

	out, err := process.Or(c.Runner).Run(ctx, "", c.StatCmd, "-xf", jobID)
	if err != nil {
		// qstat reports unknown jobs on stderr, with a non-zero exit code.
		if strings.Contains(err.Error(), "Unknown Job Id") {
			return &Job{ID: jobID}, errors.Wrapf(compute.ErrUnknownJob, "'%s'", jobID)
		}

		return nil, errors.Wrapf(err, "cannot query job '%s'", jobID)
	}

	return ParseJob(jobID, out)
}

// JobState returns the state letter of a job, e.g. "Q", "R", "F", "H". Jobs without an id, or
// unknown to PBS, have an empty state.
func (c *Client) JobState(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", nil
	}

	job, err := c.Job(ctx, jobID)
	if errors.Is(err, compute.ErrUnknownJob) {
		return "", nil
	}

	if err != nil {
		return "", err
	}

	return job.State, nil
}

// Delete removes a job from PBS.
func (c *Client) Delete(ctx context.Context, jobID string) (string, error) {
	compute.DefaultLogger.Info(process.CommandLine(c.DeleteCmd, jobID))

	out, err := process.Or(c.Runner).Run(ctx, "", c.DeleteCmd, jobID)
	if err != nil {
		return string(out), errors.Wrap(err, "Could not run qdel")
	}

	return string(out), nil
}

var userJobLine = regexp.MustCompile(`^\s*(?P<jid>[0-9]+)`)

// UserJobIDs returns the numeric ids of the jobs listed by "qstat -u user". Header lines are skipped.
func (c *Client) UserJobIDs(ctx context.Context, user string) ([]string, error) {
	if user == "" {
		return nil, errors.New("empty user name. Set $USER")
	}

	out, err := process.Or(c.Runner).Run(ctx, "", c.StatCmd, "-u", user)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list the jobs of '%s'", user)
	}

	var ids []string

	for _, line := range strings.Split(string(out), "\n") {
		if match := userJobLine.FindStringSubmatch(line); match != nil {
			ids = append(ids, match[1])
		}
	}

	return ids, nil
}

// UserJobs returns the jobs of the user that PBS still knows about.
func (c *Client) UserJobs(ctx context.Context, user string) ([]*Job, error) {
	ids, err := c.UserJobIDs(ctx, user)
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(ids))

	for _, id := range ids {
		job, err := c.Job(ctx, id)
		if errors.Is(err, compute.ErrUnknownJob) {
			// the job left the queue after it was listed.
			continue
		}

		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}

/*---------------------------------------------------
 * Filters for bulk deletion
 *---------------------------------------------------*/

// Filter selects jobs for deletion. Zero values disable a criterion.
type Filter struct {
	// MinID and MaxID bound the numeric job id, inclusive. Used only when both are positive.
	MinID int
	MaxID int

	Queue         string
	NameSubstring string
}

// Apply returns the jobs that satisfy every enabled criterion.
func (f Filter) Apply(jobs []*Job) []*Job {
	if f.MinID > 0 && f.MaxID > 0 {
		compute.DefaultLogger.Info("Filtering by id range", "min", f.MinID, "max", f.MaxID)

		jobs = keep(jobs, func(job *Job) bool {
			n, err := IDNumber(job.ID)

			return err == nil && n >= f.MinID && n <= f.MaxID
		})
	}

	if f.Queue != "" {
		compute.DefaultLogger.Info("Filtering by queue", "queue", f.Queue)

		jobs = keep(jobs, func(job *Job) bool { return job.Queue == f.Queue })
	}

	if f.NameSubstring != "" {
		compute.DefaultLogger.Info("Filtering by name", "substring", f.NameSubstring)

		jobs = keep(jobs, func(job *Job) bool { return strings.Contains(job.Name, f.NameSubstring) })
	}

	return jobs
}

func keep(jobs []*Job, pred func(*Job) bool) []*Job {
	out := make([]*Job, 0, len(jobs))

	for _, job := range jobs {
		if pred(job) {
			out = append(out, job)
		}
	}

	return out
}
