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
	"text/tabwriter"
	"time"

	"github.com/carv-ics-forth/pbskit/cmd/pbskit/commands/root"
	"github.com/carv-ics-forth/pbskit/compute/batch"
	"github.com/carv-ics-forth/pbskit/compute/ledger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func NewBatchCmd(ctx context.Context, opts *root.Opts) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "batch",
		Aliases: []string{"b"},
		Short:   "Launch and inspect batches of jobs",
	}

	cmd.AddCommand(NewBatchRunCmd(ctx, opts), NewBatchStatusCmd(ctx, opts))

	return cmd
}

type BatchRunOptions struct {
	MaxJobs        int
	Wait           bool
	CheckFrequency time.Duration
	SeparateDirs   bool
	Root           string
	Ledger         string
	NoLedger       bool
	SubmitRate     float64
	QueryWorkers   int
}

func PopulateBatchRunFlags(cmd *cobra.Command, options *BatchRunOptions) {
	cmd.Flags().IntVar(&options.MaxJobs, "max-jobs", 0, "maximum number of jobs in the queue at a time (0 submits all at once)")
	cmd.Flags().BoolVar(&options.Wait, "wait", false, "without --max-jobs, wait until all jobs have finished")
	cmd.Flags().DurationVar(&options.CheckFrequency, "check-frequency", batch.DefaultCheckFrequency, "how often the job states are checked")
	cmd.Flags().BoolVar(&options.SeparateDirs, "separate-dirs", true, "run every job in a directory named after the job")
	cmd.Flags().StringVar(&options.Root, "root", ".", "directory of the batch")
	cmd.Flags().StringVar(&options.Ledger, "ledger", "", "ledger of submissions (default is ledger.db next to the configuration)")
	cmd.Flags().BoolVar(&options.NoLedger, "no-ledger", false, "do not record the submissions")
	cmd.Flags().Float64Var(&options.SubmitRate, "submit-rate", 0, "maximum submissions per second (0 is unlimited)")
	cmd.Flags().IntVar(&options.QueryWorkers, "query-workers", batch.DefaultQueryWorkers, "concurrent state queries")
}

func NewBatchRunCmd(ctx context.Context, opts *root.Opts) *cobra.Command {
	var options BatchRunOptions

	cmd := &cobra.Command{
		Use:   "run <Manifest>",
		Short: "Launch the jobs of a TOML manifest",
		Example: `# Keep at most 10 jobs of the sweep in the queue:
  pbskit --preset k4 batch run sweep.toml --max-jobs 10
# Submit everything and wait:
  pbskit batch run sweep.toml --wait
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := batch.LoadManifest(args[0])
			if err != nil {
				return err
			}

			name := manifest.Name
			if name == "" {
				name = time.Now().Format("20060102-150405")
			}

			scheduler, err := opts.Scheduler()
			if err != nil {
				return err
			}

			root.SetOutput(scheduler, cmd.OutOrStdout())

			b := batch.New(name, scheduler, opts.StateQuerier(scheduler), manifest.BatchJobs())
			b.Root = options.Root
			b.SeparateDirectories = options.SeparateDirs
			b.CheckFrequency = options.CheckFrequency
			b.QueryWorkers = options.QueryWorkers
			b.Out = cmd.OutOrStdout()

			if options.SubmitRate > 0 {
				b.Limiter = rate.NewLimiter(rate.Limit(options.SubmitRate), 1)
			}

			if !options.NoLedger {
				l, err := ledger.Open(ledgerPath(opts, options.Ledger))
				if err != nil {
					return err
				}
				defer l.Close()

				b.Recorder = l
			}

			if b.SeparateDirectories {
				if err := b.CreateDirectories(); err != nil {
					return err
				}
			}

			logrus.Infof("Launching batch '%s' with %d jobs", b.Name, len(b.Jobs))

			if options.MaxJobs > 0 {
				return b.LaunchWithLimit(ctx, options.MaxJobs)
			}

			return b.LaunchAll(ctx, options.Wait)
		},
	}

	PopulateBatchRunFlags(cmd, &options)

	return cmd
}

type BatchStatusOptions struct {
	Ledger  string
	Batch   string
	Refresh bool
}

func NewBatchStatusCmd(ctx context.Context, opts *root.Opts) *cobra.Command {
	var options BatchStatusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded jobs of a batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledgerFile := ledgerPath(opts, options.Ledger)

			l, err := ledger.Open(ledgerFile)
			if err != nil {
				return err
			}
			defer l.Close()

			name := options.Batch
			if name == "" {
				batches, err := l.Batches(ctx)
				if err != nil {
					return err
				}

				if len(batches) == 0 {
					return errors.Errorf("no batches in ledger '%s'", ledgerFile)
				}

				name = batches[0]
			}

			if options.Refresh {
				if err := refresh(ctx, l, opts, name); err != nil {
					return err
				}
			}

			entries, err := l.Jobs(ctx, name)
			if err != nil {
				return err
			}

			states := make([]string, 0, len(entries))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tJOB ID\tSTATE\tUPDATED\tDIR")

			for _, e := range entries {
				states = append(states, e.State)

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.JobID, e.State, e.UpdatedAt.Local().Format(time.DateTime), e.Dir)
			}

			if err := w.Flush(); err != nil {
				return err
			}

			batch.Summarize(states, len(entries)).Write(cmd.OutOrStdout(), time.Now())

			return nil
		},
	}

	cmd.Flags().StringVar(&options.Ledger, "ledger", "", "ledger of submissions (default is ledger.db next to the configuration)")
	cmd.Flags().StringVar(&options.Batch, "batch", "", "name of the batch (default is the most recent)")
	cmd.Flags().BoolVar(&options.Refresh, "refresh", false, "query the scheduler for the current states")

	return cmd
}

// refresh records the current states of the jobs of a batch.
func refresh(ctx context.Context, l *ledger.Ledger, opts *root.Opts, name string) error {
	entries, err := l.Jobs(ctx, name)
	if err != nil {
		return err
	}

	scheduler, err := opts.Scheduler()
	if err != nil {
		return err
	}

	client := opts.StateQuerier(scheduler)

	for _, e := range entries {
		state, err := client.JobState(ctx, e.JobID)
		if err != nil {
			return err
		}

		if err := l.Observed(ctx, name, e.JobID, state); err != nil {
			return err
		}
	}

	return nil
}

func ledgerPath(opts *root.Opts, file string) string {
	if file != "" {
		return file
	}

	return opts.LedgerPath()
}
