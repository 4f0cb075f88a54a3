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
	"os"
	"strconv"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/profile"
	"github.com/spf13/pflag"
)

// Opts stores the options shared by every subcommand. Launcher settings given as flags
// take precedence over the selected profile.
type Opts struct {
	// ConfigFile holds the cluster profiles.
	ConfigFile string

	// ProfileName selects a profile of the ConfigFile. Empty means the default profile.
	ProfileName string

	// User owns the jobs that are listed and deleted.
	User string

	// Override is applied on top of the selected profile.
	Override profile.Profile

	// NoMail disables the completion mail of LSF jobs.
	NoMail bool
}

func installFlags(flags *pflag.FlagSet, c *Opts) {
	flags.StringVar(&c.ConfigFile, "config", compute.Environment.ConfigFile, "file with the cluster profiles")
	flags.StringVar(&c.ProfileName, "profile", os.Getenv(compute.EnvProfile), "profile of the configuration file (default is the default_profile)")
	flags.StringVar(&c.User, "user", compute.Environment.User, "owner of the jobs to list or delete")

	o := &c.Override

	flags.StringVar(&o.Scheduler, "scheduler", "", "batch scheduler: pbs, slurm, bsub or fake")
	flags.StringVar(&o.Preset, "preset", "", "queue preset, see the presets command")
	flags.StringVar(&o.ProcType, "proc-type", "", "processor type of the nas preset, e.g. skylake")

	flags.StringVar(&o.Queue, "queue-name", "", "queue to submit to")
	flags.IntVar(&o.NCPUsPerNode, "ncpus", 0, "cpus per node")
	flags.IntVar(&o.NGPUsPerNode, "ngpus", 0, "gpus per node")
	flags.IntVar(&o.MPIProcs, "mpiprocs", 0, "MPI processes per node (default is ncpus)")
	flags.IntVar(&o.Nodes, "nodes", 0, "number of nodes, clamped to the node limit")
	flags.IntVar(&o.NodeLimit, "node-limit", 0, "maximum number of nodes of the queue")
	flags.IntVar(&o.Hours, "time", 0, "walltime in hours")

	flags.StringVar(&o.ProfileFile, "profile-file", "", "file sourced at the start of the job")
	flags.StringVar(&o.MPIExec, "mpiexec", "", "MPI launcher, e.g. mpiexec, mpirun, mpiexec_mpt")
	flags.StringVar(&o.Hashbang, "hashbang", "", "first line of the script")
	flags.StringVar(&o.Shell, "shell", "", "shell of the job, e.g. bash or tcsh")
	boolVar(flags, &o.TeeOutput, "tee", "send the output of MPI commands through tee")

	flags.StringVar(&o.GroupList, "group-list", "", "PBS group list")
	flags.StringVar(&o.Model, "model", "", "PBS node model")
	flags.StringVar(&o.Mem, "mem", "", "memory per node, e.g. 200G")
	flags.StringVar(&o.Account, "account", "", "account to charge")
	flags.StringVar(&o.Project, "project", "", "LSF project")
	flags.StringVar(&o.MailOptions, "mail-options", "", "mail events, e.g. abe")
	flags.StringVar(&o.MailList, "mail-list", "", "mail recipients")
	flags.StringVar(&o.ArrayRange, "array-range", "", "job array range, e.g. 1-10")
	flags.StringVar(&o.DependencyType, "dependency-type", "", "dependency type, e.g. afterok")
	flags.StringVar(&o.Nodelist, "nodelist", "", "SLURM node list")
	boolVar(flags, &o.StopAtFirstFailure, "stop-at-first-failure", "fake scheduler: skip the remaining commands after a failure")
	flags.BoolVar(&c.NoMail, "no-mail", false, "LSF: do not send a mail on completion")
}

// optionalBool is a boolean flag that stays nil unless given, so that --tee=false can turn off
// a setting of the profile.
type optionalBool struct {
	value **bool
}

func (b optionalBool) String() string {
	if *b.value == nil {
		return "false"
	}

	return strconv.FormatBool(**b.value)
}

func (b optionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}

	*b.value = &v

	return nil
}

func (b optionalBool) Type() string {
	return "bool"
}

func boolVar(flags *pflag.FlagSet, p **bool, name string, usage string) {
	flags.VarPF(optionalBool{value: p}, name, "", usage).NoOptDefVal = "true"
}
