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
	"sort"
	"strings"

	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/pkg/errors"
)

// DefaultHours is the walltime requested by the presets, unless told otherwise.
const DefaultHours = 72

// Preset describes a queue of a known cluster.
type Preset struct {
	Name           string
	QueueName      string
	NCPUsPerNode   int
	QueueNodeLimit int
	Description    string
}

// New returns a PBS driver for the preset queue.
func (p Preset) New(hours int) *PBS {
	return New(p.QueueName, p.NCPUsPerNode, p.QueueNodeLimit, hours)
}

// Presets are the queues of LaRC's K cluster.
var Presets = map[string]Preset{
	"k3a":        {Name: "k3a", QueueName: "K3a-route", NCPUsPerNode: 16, QueueNodeLimit: 25, Description: "K3a queue of the K cluster"},
	"k3b":        {Name: "k3b", QueueName: "K3b-route", NCPUsPerNode: 28, QueueNodeLimit: 74, Description: "K3b queues of the K cluster"},
	"k3c":        {Name: "k3c", QueueName: "K3c-route", NCPUsPerNode: 28, QueueNodeLimit: 74, Description: "K3c queues of the K cluster"},
	"k4":         {Name: "k4", QueueName: "K4-route", NCPUsPerNode: 40, QueueNodeLimit: 16, Description: "K4 queues of the K cluster, including K4-standard-512"},
	"k4_v100":    {Name: "k4_v100", QueueName: "K4-V100", NCPUsPerNode: 4, QueueNodeLimit: 4, Description: "V100 GPU nodes of the K cluster"},
	"k5_a100_40": {Name: "k5_a100_40", QueueName: "K5-A100-40", NCPUsPerNode: 8, QueueNodeLimit: 2, Description: "A100 40GB GPU nodes of the K cluster"},
	"k5_a100_80": {Name: "k5_a100_80", QueueName: "K5-A100-80", NCPUsPerNode: 8, QueueNodeLimit: 2, Description: "A100 80GB GPU nodes of the K cluster"},
}

// PresetNames returns the names of the presets, sorted. It includes "nas" and "cf1".
func PresetNames() []string {
	names := make([]string, 0, len(Presets)+2)
	for name := range Presets {
		names = append(names, name)
	}

	names = append(names, "nas", "cf1")
	sort.Strings(names)

	return names
}

// FromPreset returns a PBS driver for one of the fixed queues in Presets.
func FromPreset(name string, hours int) (*PBS, error) {
	preset, ok := Presets[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(compute.ErrUnknownPreset, "'%s'", name)
	}

	return preset.New(hours), nil
}

/*---------------------------------------------------
 * NASA Advanced Supercomputing
 *---------------------------------------------------*/

// NASProcessor is a node type of the NAS clusters.
type NASProcessor struct {
	Key          string
	NCPUsPerNode int
	NGPUsPerNode int
	Model        string
	Mem          string
}

// NASProcessors are matched in order against the requested processor type, so the GPU
// variants come before the CPU families they contain.
var NASProcessors = []NASProcessor{
	{Key: "mil_a100", NCPUsPerNode: 64, NGPUsPerNode: 4, Model: "mil_a100", Mem: "500G"},
	{Key: "sky_gpu", NCPUsPerNode: 36, NGPUsPerNode: 4, Model: "sky_gpu", Mem: "200G"},
	{Key: "cas_gpu", NCPUsPerNode: 48, NGPUsPerNode: 4, Model: "cas_gpu", Mem: "200G"},
	{Key: "rom_gpu", NCPUsPerNode: 128, NGPUsPerNode: 8, Model: "rom_gpu", Mem: "700G"},
	{Key: "cas", NCPUsPerNode: 40, Model: "cas_ait"},
	{Key: "sky", NCPUsPerNode: 40, Model: "sky_ele"},
	{Key: "bro", NCPUsPerNode: 28, Model: "bro"},
	{Key: "has", NCPUsPerNode: 24, Model: "has"},
	{Key: "ivy", NCPUsPerNode: 20, Model: "ivy"},
	{Key: "san", NCPUsPerNode: 16, Model: "san"},
	{Key: "mil", NCPUsPerNode: 128, Model: "mil_ait"},
	{Key: "rom", NCPUsPerNode: 128, Model: "rom_ait"},
}

const (
	NASDefaultProcessor = "broadwell"
	NASDefaultQueue     = "long"
	nasQueueNodeLimit   = 1_000_000
)

// NAS returns a PBS driver for the NAS clusters. The group list is mandatory. The processor type
// can be written out or abbreviated, e.g. "skylake" or "sky".
func NAS(groupList string, procType string, queueName string, hours int) (*PBS, error) {
	if groupList == "" {
		return nil, errors.New("NAS jobs require a group list")
	}

	if procType == "" {
		procType = NASDefaultProcessor
	}

	if queueName == "" {
		queueName = NASDefaultQueue
	}

	for _, proc := range NASProcessors {
		if !strings.Contains(strings.ToLower(procType), proc.Key) {
			continue
		}

		p := New(queueName, proc.NCPUsPerNode, nasQueueNodeLimit, hours)
		p.NGPUsPerNode = proc.NGPUsPerNode
		p.GroupList = groupList
		p.Model = proc.Model
		p.Mem = proc.Mem

		return p, nil
	}

	return nil, errors.Wrapf(compute.ErrUnknownPreset, "unknown NAS processor selection '%s'", procType)
}

/*---------------------------------------------------
 * CF1
 *---------------------------------------------------*/

// CF1 returns a PBS driver for the CF1 cluster, whose jobs start in $SLURM_SUBMIT_DIR.
func CF1(account string, hours int) *PBS {
	p := New("normal", 64, 30, hours)
	p.GroupList = account
	p.WorkdirEnv = "$SLURM_SUBMIT_DIR"

	return p
}
