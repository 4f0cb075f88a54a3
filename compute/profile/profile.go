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

// Package profile describes clusters in a TOML file, and builds the matching scheduler.
//
//	default_profile = "k4"
//
//	[profiles.k4]
//	scheduler = "pbs"
//	preset = "k4"
//	profile_file = "~/.bashrc"
//
//	[profiles.pleiades]
//	preset = "nas"
//	proc_type = "skylake"
//	group_list = "a1234"
package profile

import (
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/carv-ics-forth/pbskit/compute/bsub"
	"github.com/carv-ics-forth/pbskit/compute/fake"
	"github.com/carv-ics-forth/pbskit/compute/launcher"
	"github.com/carv-ics-forth/pbskit/compute/pbs"
	"github.com/carv-ics-forth/pbskit/compute/slurm"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	SchedulerPBS   = "pbs"
	SchedulerSLURM = "slurm"
	SchedulerBSUB  = "bsub"
	SchedulerFake  = "fake"
)

// Schedulers are the accepted values of the scheduler field.
var Schedulers = []string{SchedulerPBS, SchedulerSLURM, SchedulerBSUB, SchedulerFake}

// Config is the content of the configuration file.
type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Profiles       map[string]Profile `toml:"profiles"`
}

// Profile is the launcher setup of a cluster. Zero values keep the defaults of the scheduler or preset.
type Profile struct {
	Scheduler string `toml:"scheduler"`
	Preset    string `toml:"preset"`
	ProcType  string `toml:"proc_type"`

	Queue        string `toml:"queue"`
	NCPUsPerNode int    `toml:"ncpus"`
	NGPUsPerNode int    `toml:"ngpus"`
	MPIProcs     int    `toml:"mpiprocs"`
	Nodes        int    `toml:"nodes"`
	NodeLimit    int    `toml:"node_limit"`
	Hours        int    `toml:"time"`

	ProfileFile string `toml:"profile_file"`
	MPIExec     string `toml:"mpiexec"`
	Hashbang    string `toml:"hashbang"`
	Shell       string `toml:"shell"`
	TeeOutput   *bool  `toml:"tee"`

	GroupList      string `toml:"group_list"`
	Model          string `toml:"model"`
	Mem            string `toml:"mem"`
	Account        string `toml:"account"`
	Project        string `toml:"project"`
	MailOptions    string `toml:"mail_options"`
	MailList       string `toml:"mail_list"`
	ArrayRange     string `toml:"array_range"`
	DependencyType string `toml:"dependency_type"`
	Nodelist       string `toml:"nodelist"`

	MailWhenComplete   *bool `toml:"mail_when_complete"`
	StopAtFirstFailure *bool `toml:"stop_at_first_failure"`
}

// Load reads the configuration file. A missing file is an empty configuration.
func Load(path string) (*Config, error) {
	var c Config

	md, err := toml.DecodeFile(compute.ExpandUser(path), &c)
	switch {
	case errors.Is(err, os.ErrNotExist):
		compute.DefaultLogger.V(1).Info("no configuration file", "path", path)

		return &c, nil
	case err != nil:
		return nil, errors.Wrapf(err, "cannot decode configuration '%s'", path)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown keys in configuration '%s': %v", path, undecoded)
	}

	if c.DefaultProfile != "" {
		if _, ok := c.Profiles[c.DefaultProfile]; !ok {
			return nil, errors.Errorf("default profile '%s' is not defined in '%s'", c.DefaultProfile, path)
		}
	}

	return &c, nil
}

// Names returns the defined profiles, sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Profile returns the named profile, or the default one when name is empty. Without a default,
// the empty profile is returned.
func (c *Config) Profile(name string) (Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}

	if name == "" {
		return Profile{}, nil
	}

	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, errors.Errorf("profile '%s' is not defined", name)
	}

	return p, nil
}

// Merge returns p with the non-zero fields of override applied on top. Booleans are overridden
// whenever they are set, so that an override can also turn them off.
func (p Profile) Merge(override Profile) Profile {
	setString := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}

	setInt := func(dst *int, src int) {
		if src != 0 {
			*dst = src
		}
	}

	setString(&p.Scheduler, override.Scheduler)
	setString(&p.Preset, override.Preset)
	setString(&p.ProcType, override.ProcType)
	setString(&p.Queue, override.Queue)
	setInt(&p.NCPUsPerNode, override.NCPUsPerNode)
	setInt(&p.NGPUsPerNode, override.NGPUsPerNode)
	setInt(&p.MPIProcs, override.MPIProcs)
	setInt(&p.Nodes, override.Nodes)
	setInt(&p.NodeLimit, override.NodeLimit)
	setInt(&p.Hours, override.Hours)
	setString(&p.ProfileFile, override.ProfileFile)
	setString(&p.MPIExec, override.MPIExec)
	setString(&p.Hashbang, override.Hashbang)
	setString(&p.Shell, override.Shell)
	setString(&p.GroupList, override.GroupList)
	setString(&p.Model, override.Model)
	setString(&p.Mem, override.Mem)
	setString(&p.Account, override.Account)
	setString(&p.Project, override.Project)
	setString(&p.MailOptions, override.MailOptions)
	setString(&p.MailList, override.MailList)
	setString(&p.ArrayRange, override.ArrayRange)
	setString(&p.DependencyType, override.DependencyType)
	setString(&p.Nodelist, override.Nodelist)

	setBool := func(dst **bool, src *bool) {
		if src != nil {
			*dst = src
		}
	}

	setBool(&p.TeeOutput, override.TeeOutput)
	setBool(&p.StopAtFirstFailure, override.StopAtFirstFailure)
	setBool(&p.MailWhenComplete, override.MailWhenComplete)

	return p
}

// SchedulerName returns the scheduler of the profile, pbs by default.
func (p Profile) SchedulerName() string {
	if p.Scheduler == "" {
		return SchedulerPBS
	}

	return strings.ToLower(p.Scheduler)
}

// Validate reports every invalid setting of the profile.
func (p Profile) Validate() error {
	var merr *multierror.Error

	scheduler := p.SchedulerName()

	known := false
	for _, s := range Schedulers {
		known = known || s == scheduler
	}

	if !known {
		merr = multierror.Append(merr, errors.Errorf("unknown scheduler '%s', expected one of %v", p.Scheduler, Schedulers))
	}

	for name, value := range map[string]int{
		"ncpus":      p.NCPUsPerNode,
		"ngpus":      p.NGPUsPerNode,
		"mpiprocs":   p.MPIProcs,
		"nodes":      p.Nodes,
		"node_limit": p.NodeLimit,
		"time":       p.Hours,
	} {
		if value < 0 {
			merr = multierror.Append(merr, errors.Errorf("'%s' cannot be negative, got %d", name, value))
		}
	}

	if p.Preset != "" && scheduler != SchedulerPBS && scheduler != SchedulerFake {
		merr = multierror.Append(merr, errors.Errorf("presets are PBS queues, but scheduler is '%s'", scheduler))
	}

	if p.ProcType != "" && !strings.EqualFold(p.Preset, "nas") {
		merr = multierror.Append(merr, errors.New("'proc_type' is only meaningful with the nas preset"))
	}

	if scheduler == SchedulerBSUB && p.Project == "" {
		merr = multierror.Append(merr, errors.New("bsub jobs require a project"))
	}

	return merr.ErrorOrNil()
}

// Build returns the scheduler described by the profile.
func (p Profile) Build() (launcher.Scheduler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var scheduler launcher.Scheduler

	switch p.SchedulerName() {
	case SchedulerPBS:
		driver, err := p.buildPBS()
		if err != nil {
			return nil, err
		}

		scheduler = driver

	case SchedulerFake:
		driver, err := p.buildPBS()
		if err != nil {
			return nil, err
		}

		f := fake.New(p.StopAtFirstFailure != nil && *p.StopAtFirstFailure)
		f.PBS = driver
		scheduler = f

	case SchedulerSLURM:
		s := slurm.New(
			orString(p.Queue, slurm.DefaultQueue),
			orInt(p.NCPUsPerNode, slurm.DefaultNCPUsPerNode),
			orInt(p.NodeLimit, slurm.DefaultQueueNodeLimit),
			orInt(p.Hours, slurm.DefaultHours),
		)
		s.Account = orString(p.Account, s.Account)
		s.Mem = orString(p.Mem, s.Mem)
		s.ArrayRange = orString(p.ArrayRange, s.ArrayRange)
		s.MailOptions = orString(p.MailOptions, s.MailOptions)
		s.MailList = orString(p.MailList, s.MailList)
		s.DependencyType = orString(p.DependencyType, s.DependencyType)
		s.Nodelist = orString(p.Nodelist, s.Nodelist)
		scheduler = s

	case SchedulerBSUB:
		b := bsub.New(
			p.Project,
			orInt(p.NGPUsPerNode, bsub.DefaultNGPUsPerNode),
			orInt(p.NodeLimit, bsub.DefaultQueueNodeLimit),
			orInt(p.Hours, bsub.DefaultHours),
		)
		if p.MailWhenComplete != nil {
			b.MailWhenComplete = *p.MailWhenComplete
		}
		scheduler = b
	}

	if err := p.configure(scheduler.Config()); err != nil {
		return nil, err
	}

	return scheduler, nil
}

func (p Profile) buildPBS() (*pbs.PBS, error) {
	hours := orInt(p.Hours, pbs.DefaultHours)

	var (
		driver *pbs.PBS
		err    error
	)

	switch strings.ToLower(p.Preset) {
	case "":
		driver = pbs.New(
			orString(p.Queue, pbs.DefaultQueue),
			orInt(p.NCPUsPerNode, pbs.DefaultNCPUsPerNode),
			orInt(p.NodeLimit, pbs.DefaultQueueNodeLimit),
			hours,
		)
	case "nas":
		driver, err = pbs.NAS(p.GroupList, p.ProcType, p.Queue, hours)
	case "cf1":
		driver = pbs.CF1(p.Account, hours)
	default:
		driver, err = pbs.FromPreset(p.Preset, hours)
	}

	if err != nil {
		return nil, err
	}

	driver.QueueName = orString(p.Queue, driver.QueueName)
	driver.GroupList = orString(p.GroupList, driver.GroupList)
	driver.Model = orString(p.Model, driver.Model)
	driver.Mem = orString(p.Mem, driver.Mem)
	driver.ArrayRange = orString(p.ArrayRange, driver.ArrayRange)
	driver.MailOptions = orString(p.MailOptions, driver.MailOptions)
	driver.MailList = orString(p.MailList, driver.MailList)
	driver.DependencyType = orString(p.DependencyType, driver.DependencyType)

	return driver, nil
}

// configure applies the settings shared by all dialects. The node count is set last, so that it
// honors the final node limit.
func (p Profile) configure(b *launcher.Base) error {
	b.NCPUsPerNode = orInt(p.NCPUsPerNode, b.NCPUsPerNode)
	b.NGPUsPerNode = orInt(p.NGPUsPerNode, b.NGPUsPerNode)
	b.MPIProcsPerNode = orInt(p.MPIProcs, b.MPIProcsPerNode)
	b.QueueNodeLimit = orInt(p.NodeLimit, b.QueueNodeLimit)
	b.MPIExec = orString(p.MPIExec, b.MPIExec)
	b.Hashbang = orString(p.Hashbang, b.Hashbang)
	b.Shell = orString(p.Shell, b.Shell)
	if p.TeeOutput != nil {
		b.TeeOutput = *p.TeeOutput
	}

	if p.Nodes > 0 {
		b.SetRequestedNodes(p.Nodes)
	}

	if p.ProfileFile != "" {
		if err := b.SetProfileFile(p.ProfileFile); err != nil {
			return err
		}
	}

	return nil
}

func orString(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

func orInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}

	return value
}
