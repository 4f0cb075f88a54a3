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

// Package fake runs jobs directly in the calling process, while behaving like a PBS driver.
// It lets a driver script run the same jobs either through PBS, or inside an existing allocation.
package fake

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/launcher"
	"github.com/carv-ics-forth/pbskit/compute/pbs"
	"github.com/carv-ics-forth/pbskit/pkg/process"
)

// PBS writes scripts like a PBS driver, but launches jobs by running their body locally.
type PBS struct {
	*pbs.PBS

	// StopAtFirstFailure skips the remaining commands once one fails.
	StopAtFirstFailure bool

	// CommandShell runs every command of the body.
	CommandShell string

	// Out receives the echoed commands and their output.
	Out io.Writer
}

var _ launcher.Scheduler = (*PBS)(nil)

// New returns a local launcher.
func New(stopAtFirstFailure bool) *PBS {
	return &PBS{
		PBS:                pbs.New("", 1, 0, 0),
		StopAtFirstFailure: stopAtFirstFailure,
		CommandShell:       "sh",
		Out:                os.Stdout,
	}
}

// Launch runs the commands of the body one after the other in req.Dir. The name, blocking, and
// dependency of the request are ignored. The returned id carries the number of failed commands,
// e.g. "FakePBS.0" when all succeeded.
func (f *PBS) Launch(ctx context.Context, req launcher.Request) (string, error) {
	failures := 0

	for _, line := range req.Body {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		fmt.Fprintln(f.Out, process.CommandLine(f.CommandShell, "-c", line))

		cmd := exec.CommandContext(ctx, f.CommandShell, "-c", line)
		cmd.Dir = req.Dir
		cmd.Stdout = f.Out
		cmd.Stderr = f.Out

		if err := cmd.Run(); err != nil {
			compute.DefaultLogger.Info("Command failed", "command", line, "reason", err.Error())

			failures++

			if f.StopAtFirstFailure {
				break
			}
		}
	}

	return fmt.Sprintf("%s.%d", pbs.FakeIDPrefix, failures), nil
}
