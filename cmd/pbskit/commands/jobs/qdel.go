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

package jobs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/carv-ics-forth/pbskit/cmd/pbskit/commands/root"
	"github.com/carv-ics-forth/pbskit/compute/pbs"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type JobDeleteOptions struct {
	IDRange string
	Queue   string
	Name    string
	Confirm bool
}

func PopulateJobDeleteFlags(cmd *cobra.Command, options *JobDeleteOptions) {
	cmd.Flags().StringVar(&options.IDRange, "id-range", "", "delete jobs in a range of id numbers, e.g. 4259000,4259100")
	cmd.Flags().StringVar(&options.Queue, "queue", "", "delete jobs in a specific queue")
	cmd.Flags().StringVar(&options.Name, "name", "", "delete jobs with a specific string in the name")
	cmd.Flags().BoolVar(&options.Confirm, "confirm", true, "ask for confirmation before deleting")
	cmd.Flags().Bool("no-confirm", false, "delete without asking")
}

// Filter converts the options to a job filter.
func (o *JobDeleteOptions) Filter() (pbs.Filter, error) {
	f := pbs.Filter{Queue: o.Queue, NameSubstring: o.Name}

	if o.IDRange == "" {
		return f, nil
	}

	bounds := strings.Split(o.IDRange, ",")
	if len(bounds) != 2 {
		return f, errors.Errorf("expected MIN,MAX id range, got '%s'", o.IDRange)
	}

	var err error

	if f.MinID, err = strconv.Atoi(strings.TrimSpace(bounds[0])); err != nil {
		return f, errors.Wrapf(err, "invalid min id")
	}

	if f.MaxID, err = strconv.Atoi(strings.TrimSpace(bounds[1])); err != nil {
		return f, errors.Wrapf(err, "invalid max id")
	}

	return f, nil
}

func NewDeleteJobsCmd(ctx context.Context, opts *root.Opts) *cobra.Command {
	var options JobDeleteOptions

	cmd := &cobra.Command{
		Use:   "qdel",
		Short: "Delete active jobs of the current user",
		Long: `Delete active PBS jobs of the current user. The jobs can be filtered by id range,
name substring, and queue. Unless --no-confirm is given, the jobs are listed and deleted only after confirmation.`,
		Example: `# Delete the jobs of the sweep:
  pbskit qdel --name sweep
# Delete a range of jobs without asking:
  pbskit qdel --id-range 4259000,4259100 --no-confirm
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noConfirm, _ := cmd.Flags().GetBool("no-confirm"); noConfirm {
				options.Confirm = false
			}

			filter, err := options.Filter()
			if err != nil {
				return err
			}

			if opts.User == "" {
				return errors.New("empty user. Use --user or set USER")
			}

			client := opts.Client()

			jobs, err := client.UserJobs(ctx, opts.User)
			if err != nil {
				return err
			}

			jobs = filter.Apply(jobs)

			out := cmd.OutOrStdout()

			if !PrintJobs(out, jobs) {
				return nil
			}

			if options.Confirm {
				ok, err := UserConfirms(cmd.InOrStdin(), out)
				if err != nil {
					return err
				}

				if !ok {
					return nil
				}
			}

			return DeleteJobs(ctx, client, out, jobs)
		},
	}

	PopulateJobDeleteFlags(cmd, &options)

	return cmd
}

// PrintJobs lists the jobs that are about to be deleted, and reports whether there are any.
func PrintJobs(w io.Writer, jobs []*pbs.Job) bool {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No active jobs found for user with specified filters")

		return false
	}

	fmt.Fprintln(w, "Found the following jobs:")
	fmt.Fprintln(w, "------------------------")

	for _, job := range jobs {
		fmt.Fprintf(w, "Job: id = %s, name = %s, queue: %s\n", job.ID, job.Name, job.Queue)
	}

	return true
}

// UserConfirms asks until the answer is one of yes, y, no, n.
func UserConfirms(in io.Reader, out io.Writer) (bool, error) {
	valid := map[string]bool{"yes": true, "y": true, "no": false, "n": false}

	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprintln(out, "Delete these jobs? [y/n]")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return false, errors.Wrap(err, "cannot read answer")
			}

			return false, io.ErrUnexpectedEOF
		}

		if answer, ok := valid[strings.ToLower(strings.TrimSpace(scanner.Text()))]; ok {
			return answer, nil
		}

		fmt.Fprintln(out, "Please respond with 'yes' or 'no' (or 'y' or 'n').")
	}
}

// DeleteJobs deletes every job, and reports all failures.
func DeleteJobs(ctx context.Context, client *pbs.Client, w io.Writer, jobs []*pbs.Job) error {
	var merr *multierror.Error

	for _, job := range jobs {
		fmt.Fprintln(w, "qdel", job.ID)

		if _, err := client.Delete(ctx, job.ID); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	return merr.ErrorOrNil()
}
