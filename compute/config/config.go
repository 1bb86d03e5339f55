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

// Package config loads the per-user settings shared by submitjob and jobstatus.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/pkg/path"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile overrides the location of the configuration file.
const EnvConfigFile = "BATCHQ_CONFIG"

// Defaults are applied to requests that do not set a resource explicitly.
type Defaults struct {
	Walltime string `yaml:"walltime"`
	Memory   string `yaml:"memory"`
	CPU      string `yaml:"cpu"`
}

type Config struct {
	// Backend is the batch system: "pbs" or "slurm".
	Backend string `yaml:"backend"`

	OutputDir string `yaml:"output_dir"`
	LogPath   string `yaml:"log_path"`

	// Template replaces the backend's job description template.
	Template string `yaml:"template"`

	CondaProfile string `yaml:"conda_profile"`

	// CommandTimeout bounds every call to the batch system. Zero means wait forever.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// MaxEmailJobs is the largest batch for which notification emails are allowed.
	MaxEmailJobs int `yaml:"max_email_jobs"`

	PollInterval time.Duration `yaml:"poll_interval"`

	Defaults Defaults `yaml:"defaults"`
}

// Default returns the settings used when there is no configuration file.
func Default() Config {
	return Config{
		Backend:        "pbs",
		OutputDir:      "~/pbs-output",
		LogPath:        "~/.pbs_log",
		CondaProfile:   "/etc/profile.d/conda.sh",
		CommandTimeout: 0,
		MaxEmailJobs:   10,
		PollInterval:   2 * time.Second,
		Defaults: Defaults{
			Walltime: "24",
			Memory:   "2",
			CPU:      "1",
		},
	}
}

// DefaultPath is $BATCHQ_CONFIG, or ~/.config/batchq/config.yaml.
func DefaultPath(home string) string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p
	}

	return filepath.Join(home, ".config", "batchq", "config.yaml")
}

// Load reads the configuration file and fills the unset keys with defaults.
// A missing file is not an error.
func Load(file string, home string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(file)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Config{}, errors.Wrapf(err, "cannot read config '%s'", file)
	default:
		var fromFile Config

		if err := yaml.Unmarshal(raw, &fromFile); err != nil {
			return Config{}, errors.Wrapf(err, "cannot parse config '%s'", file)
		}

		cfg = merge(cfg, fromFile)
	}

	cfg.OutputDir = path.ExpandHome(cfg.OutputDir, home)
	cfg.LogPath = path.ExpandHome(cfg.LogPath, home)
	cfg.Template = path.ExpandHome(cfg.Template, home)
	cfg.CondaProfile = path.ExpandHome(cfg.CondaProfile, home)

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config '%s'", file)
	}

	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	var merr *multierror.Error

	switch c.Backend {
	case "pbs", "slurm":
	default:
		merr = multierror.Append(merr, errors.Errorf("unknown backend '%s'", c.Backend))
	}

	if c.OutputDir == "" {
		merr = multierror.Append(merr, errors.New("output_dir is empty"))
	}

	if c.LogPath == "" {
		merr = multierror.Append(merr, errors.New("log_path is empty"))
	}

	if c.CommandTimeout < 0 {
		merr = multierror.Append(merr, errors.New("command_timeout must not be negative"))
	}

	if c.MaxEmailJobs < 0 {
		merr = multierror.Append(merr, errors.New("max_email_jobs must not be negative"))
	}

	if c.PollInterval <= 0 {
		merr = multierror.Append(merr, errors.New("poll_interval must be positive"))
	}

	return merr.ErrorOrNil()
}

// Overrides are values given on the command line. Empty values keep the configured ones.
type Overrides struct {
	Backend      string
	OutputDir    string
	LogPath      string
	Template     string
	CondaProfile string

	// CommandTimeout is applied when not nil, so that zero can disable a configured timeout.
	CommandTimeout *time.Duration
}

// Override applies the command-line values and validates the result.
func (c Config) Override(o Overrides, home string) (Config, error) {
	if o.Backend != "" {
		c.Backend = o.Backend
	}

	if o.OutputDir != "" {
		c.OutputDir = path.ExpandHome(o.OutputDir, home)
	}

	if o.LogPath != "" {
		c.LogPath = path.ExpandHome(o.LogPath, home)
	}

	if o.Template != "" {
		c.Template = path.ExpandHome(o.Template, home)
	}

	if o.CondaProfile != "" {
		c.CondaProfile = path.ExpandHome(o.CondaProfile, home)
	}

	if o.CommandTimeout != nil {
		c.CommandTimeout = *o.CommandTimeout
	}

	return c, c.Validate()
}

// LoadTemplate returns the contents of the custom template, if one is configured.
func (c Config) LoadTemplate() (string, error) {
	if c.Template == "" {
		return "", nil
	}

	raw, err := os.ReadFile(c.Template)
	if err != nil {
		return "", errors.Wrapf(err, "cannot read template '%s'", c.Template)
	}

	return string(raw), nil
}

func merge(base, override Config) Config {
	if override.Backend != "" {
		base.Backend = override.Backend
	}

	if override.OutputDir != "" {
		base.OutputDir = override.OutputDir
	}

	if override.LogPath != "" {
		base.LogPath = override.LogPath
	}

	if override.Template != "" {
		base.Template = override.Template
	}

	if override.CondaProfile != "" {
		base.CondaProfile = override.CondaProfile
	}

	if override.CommandTimeout != 0 {
		base.CommandTimeout = override.CommandTimeout
	}

	if override.MaxEmailJobs != 0 {
		base.MaxEmailJobs = override.MaxEmailJobs
	}

	if override.PollInterval != 0 {
		base.PollInterval = override.PollInterval
	}

	if override.Defaults.Walltime != "" {
		base.Defaults.Walltime = override.Defaults.Walltime
	}

	if override.Defaults.Memory != "" {
		base.Defaults.Memory = override.Defaults.Memory
	}

	if override.Defaults.CPU != "" {
		base.Defaults.CPU = override.Defaults.CPU
	}

	return base
}
