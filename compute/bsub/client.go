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

package bsub

import (
	"context"
	"strings"

	"github.com/carv-ics-forth/pbskit/pkg/process"
	"github.com/pkg/errors"
)

// Client queries the state of LSF jobs.
type Client struct {
	StatCmd string
	Runner  process.Runner
}

// NewClient returns a client that uses bjobs.
func NewClient() *Client {
	return &Client{StatCmd: "bjobs"}
}

// jobStates maps the LSF job states onto the letters used for PBS jobs.
var jobStates = map[string]string{
	"PEND":  "Q",
	"WAIT":  "Q",
	"RUN":   "R",
	"PROV":  "R",
	"PSUSP": "H",
	"USUSP": "H",
	"SSUSP": "H",
	"DONE":  "F",
	"EXIT":  "F",
	"ZOMBI": "F",
}

// JobState returns the state of a job as "Q", "R", "H" or "F". Jobs that bjobs no longer knows
// about have finished. Jobs without an id have an empty state.
func (c *Client) JobState(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", nil
	}

	out, err := process.Or(c.Runner).Run(ctx, "", c.StatCmd, "-noheader", "-o", "stat", jobID)
	if err != nil {
		if strings.Contains(err.Error(), "is not found") {
			return "F", nil
		}

		return "", errors.Wrapf(err, "cannot query job '%s'", jobID)
	}

	stat := strings.TrimSpace(string(out))

	if stat == "" || strings.Contains(stat, "is not found") {
		return "F", nil
	}

	if state, ok := jobStates[stat]; ok {
		return state, nil
	}

	return stat, nil
}
