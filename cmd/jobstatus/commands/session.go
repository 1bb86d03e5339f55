// Copyright © 2023 FORTH-ICS
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

// Package commands holds the subcommands of jobstatus.
package commands

import (
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/backend"
	"github.com/carv-ics-forth/batchq/compute/config"
	"github.com/carv-ics-forth/batchq/compute/joblog"
	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/carv-ics-forth/batchq/pkg/process"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// DefaultLogger is handed to the components. It follows --log-level.
var DefaultLogger logr.Logger = compute.DefaultLogger

// Globals are the options shared by every subcommand.
type Globals struct {
	Backend    string
	OutputDir  string
	LogPath    string
	ConfigFile string
	Timeout    time.Duration
}

func InstallGlobalFlags(flags *pflag.FlagSet, g *Globals) {
	flags.StringVar(&g.Backend, "backend", "", "batch system: pbs or slurm (default from config, pbs)")
	flags.StringVar(&g.OutputDir, "output-dir", "", "where jobs write their output (default ~/pbs-output)")
	flags.StringVar(&g.LogPath, "log-path", "", "the submission log (default ~/.pbs_log)")
	flags.StringVar(&g.ConfigFile, "config", "", "configuration file (default $BATCHQ_CONFIG or ~/.config/batchq/config.yaml)")
	flags.DurationVar(&g.Timeout, "timeout", 0, "give up on a batch system command after this long (0 waits forever)")
}

// Session is what a subcommand works with: the user, the settings and the batch system.
type Session struct {
	Env     compute.HostEnvironment
	Config  config.Config
	Backend backend.Backend
	Log     *joblog.Log
	Output  paths.OutputPath
}

// Open loads the configuration, applies the global flags and connects to the batch system.
func (g *Globals) Open(cmd *cobra.Command) (*Session, error) {
	env := compute.DiscoverEnvironment()
	if env.Home == "" {
		return nil, errors.New("unable to find the home directory")
	}

	file := g.ConfigFile
	if file == "" {
		file = config.DefaultPath(env.Home)
	}

	cfg, err := config.Load(file, env.Home)
	if err != nil {
		return nil, err
	}

	overrides := config.Overrides{
		Backend:   g.Backend,
		OutputDir: g.OutputDir,
		LogPath:   g.LogPath,
	}

	if cmd.Flags().Changed("timeout") {
		overrides.CommandTimeout = &g.Timeout
	}

	if cfg, err = cfg.Override(overrides, env.Home); err != nil {
		return nil, err
	}

	be, err := backend.New(cfg.Backend, process.Host{Timeout: cfg.CommandTimeout})
	if err != nil {
		return nil, err
	}

	log := joblog.New(cfg.LogPath)
	log.Logger = DefaultLogger.WithValues("log", cfg.LogPath)

	return &Session{
		Env:     env,
		Config:  cfg,
		Backend: be,
		Log:     log,
		Output:  paths.Output(cfg.OutputDir),
	}, nil
}
