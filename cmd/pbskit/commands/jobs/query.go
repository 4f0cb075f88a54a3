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
	"context"
	"fmt"
	"io"
	"time"

	"github.com/carv-ics-forth/pbskit/cmd/pbskit/commands/root"
	"github.com/carv-ics-forth/pbskit/compute/pbs"
	"github.com/spf13/cobra"
)

func NewJobDirCmd(ctx context.Context, opts *root.Opts) *cobra.Command {
	return &cobra.Command{
		Use:   "jobdir <JobID>",
		Short: "Print the directory a job was submitted from",
		Long: `Print the directory a job was submitted from. Combine it with a shell function
to move to the directory of a job:

  qdir() { cd "$(pbskit jobdir "$1")"; }
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := opts.Client().Job(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), job.Workdir)

			return nil
		},
	}
}

func NewStatusCmd(ctx context.Context, opts *root.Opts) *cobra.Command {
	return &cobra.Command{
		Use:   "status <JobID>",
		Short: "Print the attributes of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := opts.Client().Job(ctx, args[0])
			if err != nil {
				return err
			}

			PrintJob(cmd.OutOrStdout(), job)

			return nil
		},
	}
}

// PrintJob writes the known attributes of a job, one per line.
func PrintJob(w io.Writer, job *pbs.Job) {
	fmt.Fprintf(w, "Id:               %s\n", job.ID)
	fmt.Fprintf(w, "Name:             %s\n", job.Name)
	fmt.Fprintf(w, "Queue:            %s\n", job.Queue)
	fmt.Fprintf(w, "State:            %s\n", job.State)
	fmt.Fprintf(w, "Workdir:          %s\n", job.Workdir)

	if job.Model != "" {
		fmt.Fprintf(w, "Model:            %s\n", job.Model)
	}

	fmt.Fprintf(w, "Nodes:            %d\n", job.RequestedNodes)
	fmt.Fprintf(w, "Cpus per node:    %d\n", job.NCPUsPerNode)
	fmt.Fprintf(w, "Walltime:         %s\n", job.WalltimeRequested)

	if job.Hostname != "" {
		fmt.Fprintf(w, "Host:             %s\n", job.Hostname)
	}

	if job.WalltimeUsed != nil {
		fmt.Fprintf(w, "Walltime used:    %s\n", *job.WalltimeUsed)
	}

	if job.WalltimeRemaining != nil {
		fmt.Fprintf(w, "Walltime left:    %s\n", *job.WalltimeRemaining)
	}

	if job.ExitStatus != nil {
		fmt.Fprintf(w, "Exit status:      %d\n", *job.ExitStatus)
	}
}

func NewTailCmd(ctx context.Context, opts *root.Opts) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "tail <JobID> <File>",
		Short: "Follow an output file while the job is queued or running",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Client().Tail(ctx, args[0], args[1], cmd.OutOrStdout(), interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", pbs.DefaultTailInterval, "how often the file and the job state are checked")

	return cmd
}

func NewPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the queue presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			PrintPresets(cmd.OutOrStdout())
		},
	}
}

// PrintPresets lists the queue presets, and the processor types of the nas preset.
func PrintPresets(w io.Writer) {
	for _, name := range pbs.PresetNames() {
		switch name {
		case "cf1":
			fmt.Fprintf(w, "%-12s queue=normal ncpus=64 node-limit=30  CF1 cluster, --account sets the group list\n", name)
		case "nas":
			fmt.Fprintf(w, "%-12s queue=%s  NAS clusters, --group-list is required, --proc-type is one of:\n", name, pbs.NASDefaultQueue)

			for _, proc := range pbs.NASProcessors {
				fmt.Fprintf(w, "  %-10s ncpus=%d ngpus=%d model=%s", proc.Key, proc.NCPUsPerNode, proc.NGPUsPerNode, proc.Model)

				if proc.Mem != "" {
					fmt.Fprintf(w, " mem=%s", proc.Mem)
				}

				fmt.Fprintln(w)
			}
		default:
			p := pbs.Presets[name]

			fmt.Fprintf(w, "%-12s queue=%s ncpus=%d node-limit=%d  %s\n", p.Name, p.QueueName, p.NCPUsPerNode, p.QueueNodeLimit, p.Description)
		}
	}
}
