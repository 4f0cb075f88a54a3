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
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HPCEnvironment contains information about the submission environment.
type HPCEnvironment struct {
	// User owns the jobs that are listed and deleted.
	User string

	// ConfigFile holds the cluster profiles.
	ConfigFile string
}

var Environment = HPCEnvironment{
	User:       os.Getenv("USER"),
	ConfigFile: DefaultConfigFile(),
}

var logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

var DefaultLogger = newLogger()

func newLogger() logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = logLevel
	cfg.DisableStacktrace = true

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}

	return zapr.NewLogger(zl)
}

// SetLogLevel adjusts the verbosity of DefaultLogger, e.g. "debug", "info", "warn", "error".
// The logrus names "trace" and "warning" are accepted too.
func SetLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "trace":
		level = "debug"
	case "warning":
		level = "warn"
	}

	return logLevel.UnmarshalText([]byte(level))
}

/************************************************************

			Shared Paths and Permissions

************************************************************/

const (
	JobDirectoryPermissions = os.FileMode(0o755)
	JobScriptPermissions    = os.FileMode(0o644)
	LedgerFilePermissions   = os.FileMode(0o600)
)

var (
	UserHomeDir, _ = os.UserHomeDir()
	ConfigDir      = filepath.Join(userConfigDir(), "pbskit")
)

const (
	EnvConfigFile = "PBSKIT_CONFIG"
	EnvProfile    = "PBSKIT_PROFILE"
	EnvLedger     = "PBSKIT_LEDGER"
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}

	return filepath.Join(UserHomeDir, ".config")
}

// DefaultConfigFile returns $PBSKIT_CONFIG, or config.toml under the user configuration directory.
func DefaultConfigFile() string {
	if path := os.Getenv(EnvConfigFile); path != "" {
		return path
	}

	return filepath.Join(ConfigDir, "config.toml")
}

// ExpandUser replaces a leading ~ with the home directory of the current user.
func ExpandUser(path string) string {
	if path == "~" {
		return UserHomeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(UserHomeDir, path[2:])
	}

	return path
}
