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

package launcher

import (
	"fmt"
	"strconv"
	"strings"
)

// MPTExec is the launcher of the SGI/HPE Message Passing Toolkit, which pins threads with omplace.
const MPTExec = "mpiexec_mpt"

// MPIOptions tune the parallel layout of an MPI command. Zero values mean "not set".
type MPIOptions struct {
	OpenMPThreads int
	RanksPerNode  int
}

// MPICommand wraps command with the MPI launcher and routes its output to <outputRoot>.out.
func (b *Base) MPICommand(command string, outputRoot string, opts MPIOptions) string {
	return joinNonEmpty(
		b.ompSettings(opts.OpenMPThreads),
		b.MPIExec,
		b.procInfo(opts),
		command,
		b.RedirectOutput(outputRoot+".out"),
	)
}

func (b *Base) usingMPT() bool {
	return b.MPIExec == MPTExec
}

func (b *Base) ompSettings(threads int) string {
	if threads <= 0 {
		return ""
	}

	vars := []string{fmt.Sprintf("OMP_NUM_THREADS=%d", threads)}
	if !b.usingMPT() {
		vars = append(vars, "OMP_PLACES=cores", "OMP_PROC_BIND=close")
	}

	return joinNonEmpty(vars...)
}

func (b *Base) ranksPerNode(opts MPIOptions) int {
	switch {
	case opts.RanksPerNode > 0:
		return opts.RanksPerNode
	case opts.OpenMPThreads > 1:
		return b.NCPUsPerNode / opts.OpenMPThreads
	default:
		return 0
	}
}

func (b *Base) procInfo(opts MPIOptions) string {
	ranks := b.ranksPerNode(opts)
	if ranks == 0 {
		return ""
	}

	if !b.usingMPT() {
		return fmt.Sprintf("--npernode %d", ranks)
	}

	info := fmt.Sprintf("-np %d", ranks*b.RequestedNodes)

	if opts.OpenMPThreads > 1 {
		cores := make([]string, b.NCPUsPerNode)
		for i := range cores {
			cores[i] = strconv.Itoa(i)
		}

		info += fmt.Sprintf(` omplace -c "%s" -nt %d -vv`, strings.Join(cores, ","), opts.OpenMPThreads)
	}

	return info
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}

	return strings.Join(out, " ")
}
