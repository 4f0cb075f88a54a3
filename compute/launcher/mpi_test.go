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

import "testing"

func TestMPICommand(t *testing.T) {
	tests := []struct {
		name     string
		mpiexec  string
		nodes    int
		opts     MPIOptions
		expected string
	}{
		{
			name:     "openmpi",
			mpiexec:  "mpirun",
			expected: "mpirun foo &> dog.out",
		},
		{
			name:     "openmpi-threads",
			mpiexec:  "mpirun",
			opts:     MPIOptions{OpenMPThreads: 5},
			expected: "OMP_NUM_THREADS=5 OMP_PLACES=cores OMP_PROC_BIND=close mpirun --npernode 6 foo &> dog.out",
		},
		{
			name:     "openmpi-ranks",
			mpiexec:  "mpirun",
			opts:     MPIOptions{RanksPerNode: 3},
			expected: "mpirun --npernode 3 foo &> dog.out",
		},
		{
			name:     "single-thread",
			mpiexec:  "mpiexec",
			opts:     MPIOptions{OpenMPThreads: 1},
			expected: "OMP_NUM_THREADS=1 OMP_PLACES=cores OMP_PROC_BIND=close mpiexec foo &> dog.out",
		},
		{
			name:     "mpt",
			mpiexec:  MPTExec,
			nodes:    2,
			opts:     MPIOptions{OpenMPThreads: 10},
			expected: `OMP_NUM_THREADS=10 mpiexec_mpt -np 6 omplace -c "0,1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20,21,22,23,24,25,26,27,28,29" -nt 10 -vv foo &> dog.out`,
		},
		{
			name:     "mpt-ranks",
			mpiexec:  MPTExec,
			nodes:    2,
			opts:     MPIOptions{RanksPerNode: 4},
			expected: "mpiexec_mpt -np 8 foo &> dog.out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBase(30, 0, 0, 1)
			b.MPIExec = tt.mpiexec
			if tt.nodes > 0 {
				b.SetRequestedNodes(tt.nodes)
			}

			if got := b.MPICommand("foo", "dog", tt.opts); got != tt.expected {
				t.Errorf("MPICommand() =\n%q\nexpected\n%q", got, tt.expected)
			}
		})
	}
}
