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

package compute

import (
	"github.com/pkg/errors"
)

var (
	ErrProfileNotFound = errors.New("unable to set profile file")
	ErrUnknownJob      = errors.New("unknown job id")
	ErrUnknownPreset   = errors.New("unknown preset")
	ErrInvalidLimit    = errors.New("the maximum number of jobs must be greater than 0")
	ErrNoJobID         = errors.New("no job id in scheduler output")
)
