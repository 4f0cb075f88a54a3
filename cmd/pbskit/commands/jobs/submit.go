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
	"os"
	"strings"

	"github.com/carv-ics-forth/pbskit/cmd/pbskit/commands/root"
	"github.com/carv-ics-forth/pbskit/compute/launcher"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// BodyOptions collect the commands of a job.
type BodyOptions struct {
	Commands []string
	BodyFile string
}

func PopulateBodyFlags(cmd *cobra.Command, options *BodyOptions) {
	cmd.Flags().StringArrayVarP(&options.Commands, "command", "c", nil, "command of the job, repeat for multiple lines")
	cmd.Flags().StringVar(&options.BodyFile, "body-file", "", "file whose non-empty lines are appended to the commands")
}

// Body returns the commands followed by the lines of the body file.
func (o *BodyOptions) Body() ([]string, error) {
	body := append([]string(nil), o.Commands...)

	if o.BodyFile != "" {
		f, err := os.Open(o.BodyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open body file")
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := strings.TrimRight(scanner.Text(), " \t\r"); line != "" {
				body = append(body, line)
			}
		}

		if err := scanner.Err(); err != nil {
			return nil, errors.Wrapf(err, "cannot read body file '%s'", o.BodyFile)
		}
	}

	if len(body) == 0 {
		return nil, errors.New("empty job body. Use --command or --body-file")
	}

	return body, nil
}

type JobSubmitOptions struct {
	BodyOptions

	Blocking   bool
	Dependency string
	Dir        string
}

func PopulateJobSubmitFlags(cmd *cobra.Command, options *JobSubmitOptions) {
	PopulateBodyFlags(cmd, &options.BodyOptions)

	cmd.Flags().BoolVar(&options.Blocking, "blocking", false, "wait until the job has finished")
	cmd.Flags().StringVar(&options.Dependency, "dependency", "", "jobs this one depends on")
	cmd.Flags().StringVar(&options.Dir, "dir", ".", "directory where the script is written and submitted from")
}

func NewSubmitJobCmd(ctx context.Context, opts *root.Opts) *cobra.Command {
	var options JobSubmitOptions

	cmd := &cobra.Command{
		Use:   "submit <Name>",
		Short: "Write a job script and submit it",
		Long:  `Write <Name>.<ext> into the job directory, submit it, and print the job id.`,
		Example: `# Submit a job to the K4 queues:
  pbskit --preset k4 --nodes 2 submit sample -c "mpiexec ./solver"
# Submit and wait for completion:
  pbskit submit sample --blocking --body-file commands.txt
# Submit after another job succeeded:
  pbskit submit post --dependency 4259576.pbssrv1 -c ./post.sh
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := options.Body()
			if err != nil {
				return err
			}

			scheduler, err := opts.Scheduler()
			if err != nil {
				return err
			}

			root.SetOutput(scheduler, cmd.OutOrStdout())

			jobID, err := scheduler.Launch(ctx, launcher.Request{
				Name:       args[0],
				Body:       body,
				Blocking:   options.Blocking,
				Dependency: options.Dependency,
				Dir:        options.Dir,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), jobID)

			return nil
		},
	}

	PopulateJobSubmitFlags(cmd, &options)

	return cmd
}

type JobWriteOptions struct {
	BodyOptions

	Dependency string
}

func NewWriteJobCmd(opts *root.Opts) *cobra.Command {
	var options JobWriteOptions

	cmd := &cobra.Command{
		Use:   "write <File> <Name>",
		Short: "Write a job script without submitting it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := options.Body()
			if err != nil {
				return err
			}

			scheduler, err := opts.Scheduler()
			if err != nil {
				return err
			}

			return launcher.WriteJobFile(scheduler, args[0], args[1], body, options.Dependency)
		},
	}

	PopulateBodyFlags(cmd, &options.BodyOptions)
	cmd.Flags().StringVar(&options.Dependency, "dependency", "", "jobs this one depends on")

	return cmd
}

func NewMPICmd(opts *root.Opts) *cobra.Command {
	var options launcher.MPIOptions

	cmd := &cobra.Command{
		Use:   "mpi <Command> <OutputRoot>",
		Short: "Print the MPI command line of the selected scheduler",
		Long:  `Print the command line that runs <Command> through MPI, with its output in <OutputRoot>.out`,
		Example: `# Hybrid MPI and OpenMP run:
  pbskit --preset k4 --nodes 2 mpi ./solver run1 --openmp-threads 4
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, err := opts.Scheduler()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), scheduler.MPICommand(args[0], args[1], options))

			return nil
		},
	}

	cmd.Flags().IntVar(&options.OpenMPThreads, "openmp-threads", 0, "OpenMP threads per MPI rank")
	cmd.Flags().IntVar(&options.RanksPerNode, "ranks-per-node", 0, "MPI ranks per node (default is ncpus / threads)")

	return cmd
}
