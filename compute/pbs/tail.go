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
	"io"
	"os"
	"time"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/pkg/filenotify"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// DefaultTailInterval is how often Tail checks the state of the job.
const DefaultTailInterval = 100 * time.Millisecond

// Tail copies a file to w and keeps following it until the job is no longer queued or running.
// Files of local runs are copied once.
func (c *Client) Tail(ctx context.Context, jobID string, file string, w io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTailInterval
	}

	if IsFakeID(jobID) {
		f, err := os.Open(file)
		if err != nil {
			return errors.Wrapf(err, "cannot open '%s'", file)
		}
		defer f.Close()

		_, err = io.Copy(w, f)

		return err
	}

	// the job may not have started writing yet.
	f, err := os.OpenFile(file, os.O_RDONLY|os.O_CREATE, compute.JobScriptPermissions)
	if err != nil {
		return errors.Wrapf(err, "cannot open '%s'", file)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return err
	}

	watcher := filenotify.New(interval)
	defer watcher.Close()

	if err := watcher.Add(file); err != nil {
		return errors.Wrapf(err, "cannot watch '%s'", file)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event := <-watcher.Events():
			if event.Op&fsnotify.Write == fsnotify.Write {
				if _, err := io.Copy(w, f); err != nil {
					return err
				}
			}

		case err := <-watcher.Errors():
			return errors.Wrapf(err, "watch of '%s' failed", file)

		case <-ticker.C:
			if _, err := io.Copy(w, f); err != nil {
				return err
			}

			state, err := c.JobState(ctx, jobID)
			if err != nil {
				return err
			}

			if state != StateQueued && state != StateRunning {
				_, err := io.Copy(w, f)

				return err
			}
		}
	}
}
