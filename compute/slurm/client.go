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

package slurm

import (
	"context"
	"strings"

	"github.com/carv-ics-forth/pbskit/pkg/process"
	"github.com/pkg/errors"
)

// Client queries the state of Slurm jobs.
type Client struct {
	StatCmd string
	Runner  process.Runner
}

// NewClient returns a client that uses squeue.
func NewClient() *Client {
	return &Client{StatCmd: "squeue"}
}

// jobStates maps the compact squeue states onto the letters used for PBS jobs.
var jobStates = map[string]string{
	"PD": "Q", "CF": "Q",
	"R": "R", "CG": "R", "SO": "R", "RS": "R",
	"S": "H", "ST": "H", "RH": "H", "RQ": "H", "RD": "H", "RF": "H",
	"CD": "F", "CA": "F", "F": "F", "TO": "F", "NF": "F", "PR": "F", "OOM": "F", "BF": "F", "DL": "F",
}

// JobState returns the state of a job as "Q", "R", "H" or "F". Jobs that squeue no longer
// lists have finished. Jobs without an id have an empty state.
func (c *Client) JobState(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", nil
	}

	out, err := process.Or(c.Runner).Run(ctx, "", c.StatCmd, "-h", "-o", "%t", "-j", jobID)
	if err != nil {
		// purged jobs are reported on stderr, with a non-zero exit code.
		if strings.Contains(err.Error(), "Invalid job id") {
			return "F", nil
		}

		return "", errors.Wrapf(err, "cannot query job '%s'", jobID)
	}

	code := strings.TrimSpace(string(out))
	if code == "" {
		return "F", nil
	}

	if state, ok := jobStates[code]; ok {
		return state, nil
	}

	return code, nil
}
