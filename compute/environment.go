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
	"os/user"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/matishsiao/goInfo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HostEnvironment contains information about the submission host, as seen by the invoking user.
// These values end up in the rendered job description.
type HostEnvironment struct {
	User       string
	Home       string
	WorkDir    string
	Path       string
	SubmitHost string
}

// DefaultLogger is used by components that are not given a logger explicitly.
var DefaultLogger = NewLogger(zapcore.WarnLevel)

// NewLogger returns a development logger that writes to stderr at the given level.
func NewLogger(level zapcore.Level) logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}

	return zapr.NewLogger(zl)
}

/************************************************************

			Discover the Submission Host

************************************************************/

// DiscoverEnvironment collects the values of the current process.
// Missing values are left empty and the caller decides whether they are needed.
func DiscoverEnvironment() HostEnvironment {
	env := HostEnvironment{
		User: os.Getenv("USER"),
		Path: os.Getenv("PATH"),
	}

	if u, err := user.Current(); err == nil {
		if env.User == "" {
			env.User = u.Username
		}

		env.Home = u.HomeDir
	}

	if home, err := os.UserHomeDir(); err == nil {
		env.Home = home
	}

	if wd, err := os.Getwd(); err == nil {
		env.WorkDir = wd
	}

	env.SubmitHost = hostname()

	return env
}

func hostname() (name string) {
	defer func() {
		// goInfo shells out to uname, which is not there on every login node.
		if r := recover(); r != nil {
			name, _ = os.Hostname()
		}
	}()

	info, err := goInfo.GetInfo()
	if err != nil || info.Hostname == "" {
		name, _ = os.Hostname()

		return name
	}

	return strings.TrimSpace(info.Hostname)
}
