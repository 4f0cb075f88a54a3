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

// Package process runs external programs on behalf of the scheduler drivers.
package process

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/pkg/errors"
)

// Runner executes a program in a directory and returns its standard output.
// An empty dir means the current working directory.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	return f(ctx, dir, name, args...)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), errors.Wrapf(err, "'%s' failed. stderr: '%s'",
			CommandLine(name, args...), strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

// DefaultRunner is used when a driver is not given a Runner.
var DefaultRunner Runner = ExecRunner{}

// CommandLine renders a command the way a user would type it in a shell.
func CommandLine(name string, args ...string) string {
	return shellescape.QuoteCommand(append([]string{name}, args...))
}

// Or returns r, or DefaultRunner when r is nil.
func Or(r Runner) Runner {
	if r == nil {
		return DefaultRunner
	}

	return r
}
