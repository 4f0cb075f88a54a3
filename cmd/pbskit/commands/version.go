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

package commands

import (
	"fmt"
	"runtime"

	"github.com/matishsiao/goInfo"
	"github.com/spf13/cobra"
)

var (
	BuildVersion = "N/A"
	BuildTime    = "N/A"
)

// HostInfo describes the machine the command runs on.
func HostInfo() (kernel, os, arch string) {
	// goinfo.GetInfo may crash sometimes. use this method to recover and continue.
	defer func() {
		if r := recover(); r != nil {
			fmt.Println("Recovered from goinfo failure:", r)

			kernel, os, arch = "unknown", runtime.GOOS, runtime.GOARCH
		}
	}()

	info, err := goInfo.GetInfo()
	if err != nil {
		return "unknown", runtime.GOOS, runtime.GOARCH
	}

	return info.Kernel, info.OS, info.Platform
}

// NewVersionCommand creates a new version subcommand command
func NewVersionCommand(version, buildTime string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version of the program",
		Long:  `Show the version of the program, and the host it runs on`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			kernel, os, arch := HostInfo()

			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s, Built: %s\n", version, buildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "Host: %s/%s, Kernel: %s\n", os, arch, kernel)
		},
	}
}
