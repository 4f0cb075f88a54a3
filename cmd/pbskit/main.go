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

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/carv-ics-forth/pbskit/cmd/pbskit/commands"
	"github.com/carv-ics-forth/pbskit/cmd/pbskit/commands/jobs"
	"github.com/carv-ics-forth/pbskit/cmd/pbskit/commands/root"
	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sig
		cancel()
	}()

	var opts root.Opts

	rootCmd := root.NewCommand(filepath.Base(os.Args[0]), &opts)
	rootCmd.AddCommand(
		jobs.NewSubmitJobCmd(ctx, &opts),
		jobs.NewWriteJobCmd(&opts),
		jobs.NewMPICmd(&opts),
		jobs.NewBatchCmd(ctx, &opts),
		jobs.NewDeleteJobsCmd(ctx, &opts),
		jobs.NewJobDirCmd(ctx, &opts),
		jobs.NewStatusCmd(ctx, &opts),
		jobs.NewTailCmd(ctx, &opts),
		jobs.NewPresetsCmd(),
		commands.NewVersionCommand(commands.BuildVersion, commands.BuildTime),
	)

	var logLevel string

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", `set the log level, e.g. "debug", "info", "warn", "error"`)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return errors.Wrap(err, "could not parse log level")
			}
			logrus.SetLevel(lvl)

			if err := compute.SetLogLevel(logLevel); err != nil {
				return errors.Wrap(err, "could not set the log level of the launchers")
			}
		}

		return nil
	}

	if err := rootCmd.Execute(); err != nil && errors.Cause(err) != context.Canceled {
		logrus.Fatal(err)
	}
}
