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

package root

import (
	"bytes"
	"fmt"
	"io"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/batch"
	"github.com/carv-ics-forth/pbskit/compute/bsub"
	"github.com/carv-ics-forth/pbskit/compute/fake"
	"github.com/carv-ics-forth/pbskit/compute/launcher"
	"github.com/carv-ics-forth/pbskit/compute/ledger"
	"github.com/carv-ics-forth/pbskit/compute/pbs"
	"github.com/carv-ics-forth/pbskit/compute/profile"
	"github.com/carv-ics-forth/pbskit/compute/slurm"
	"github.com/carv-ics-forth/pbskit/pkg/path"
	"github.com/dimiro1/banner"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func logo() string {
	buf := bytes.NewBuffer(nil)

	banner.InitString(buf, true, true, `
{{ .AnsiColor.BrightGreen }}
{{ .Title "PBSKIT" "" 4 }}
{{ .AnsiColor.Default }}
	`)

	return buf.String()
}

// NewCommand creates a new top-level command. The subcommands share c.
func NewCommand(name string, c *Opts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: name + " writes and submits batch jobs",
		Long: name + ` writes job scripts for PBS, SLURM and LSF, submits them,
and keeps a limited number of jobs of a batch in the queue.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), logo())

			return cmd.Help()
		},
	}

	installFlags(cmd.PersistentFlags(), c)

	return cmd
}

// Validate sanitizes the options given as flags.
func (c *Opts) Validate() error {
	var merr *multierror.Error

	if c.ConfigFile == "" {
		merr = multierror.Append(merr, errors.New("empty configuration path. Use --config or set PBSKIT_CONFIG"))
	}

	if c.User == "" {
		merr = multierror.Append(merr, errors.New("empty user. Use --user or set USER"))
	}

	if err := c.Override.Validate(); err != nil {
		merr = multierror.Append(merr, err)
	}

	return merr.ErrorOrNil()
}

// Profile returns the selected profile with the flags applied on top.
func (c *Opts) Profile() (profile.Profile, error) {
	if err := c.Validate(); err != nil {
		return profile.Profile{}, err
	}

	config, err := profile.Load(c.ConfigFile)
	if err != nil {
		return profile.Profile{}, err
	}

	p, err := config.Profile(c.ProfileName)
	if err != nil {
		return profile.Profile{}, err
	}

	override := c.Override
	if c.NoMail {
		noMail := false
		override.MailWhenComplete = &noMail
	}

	return p.Merge(override), nil
}

// Scheduler builds the scheduler of the selected profile.
func (c *Opts) Scheduler() (launcher.Scheduler, error) {
	p, err := c.Profile()
	if err != nil {
		return nil, err
	}

	s, err := p.Build()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid profile")
	}

	if submitCmd := SubmitCommand(s); submitCmd != "" {
		if _, err := path.LookPath(submitCmd); err != nil {
			logrus.Warnf("Submission command '%s' is not in PATH", submitCmd)
		}
	}

	return s, nil
}

// Client returns the PBS client used for queries and deletions.
func (c *Opts) Client() *pbs.Client {
	return pbs.NewClient()
}

// StateQuerier returns the client that reports the states of the jobs launched by s.
// Local runs are resolved by the PBS client.
func (c *Opts) StateQuerier(s launcher.Scheduler) batch.StateQuerier {
	switch s.(type) {
	case *slurm.SLURM:
		return slurm.NewClient()
	case *bsub.BSUB:
		return bsub.NewClient()
	default:
		return c.Client()
	}
}

// LedgerPath returns $PBSKIT_LEDGER, or the ledger next to the configuration file.
func (c *Opts) LedgerPath() string {
	return ledger.DefaultPath(compute.ExpandUser(c.ConfigFile))
}

// SubmitCommand returns the binary that hands scripts to the scheduler, or "" when jobs run locally.
func SubmitCommand(s launcher.Scheduler) string {
	switch d := s.(type) {
	case *fake.PBS:
		return ""
	case *pbs.PBS:
		return d.SubmitCmd
	case *slurm.SLURM:
		return d.SubmitCmd
	case *bsub.BSUB:
		return d.SubmitCmd
	default:
		return ""
	}
}

// SetOutput sends the output of local runs to w.
func SetOutput(s launcher.Scheduler, w io.Writer) {
	if f, ok := s.(*fake.PBS); ok {
		f.Out = w
	}
}
