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

package root

import (
	"time"

	"github.com/spf13/pflag"
)

// Opts stores all the options of the submitjob command.
// Resource values are kept as text and parsed once the defaults of the configuration are known.
type Opts struct {
	Walltime string
	Memory   string
	CPU      string

	// Node is a node name, or a unique prefix of one.
	Node string

	CondaEnv     string
	CondaProfile string

	// File has one command per line. Ignored when a command is given.
	File string

	DisableLog bool
	LogPath    string

	Email string
	Name  string

	// ArgsFile has one argument per line. BatchSize arguments are given to each job.
	ArgsFile  string
	BatchSize int

	Pretend bool

	Backend   string
	OutputDir string
	Template  string
	Timeout   time.Duration

	ConfigFile string
}

func installFlags(flags *pflag.FlagSet, c *Opts) {
	flags.StringVarP(&c.Walltime, "walltime", "w", "", "expected run time in hours, or HH:MM:SS (default from config, 24)")
	flags.StringVarP(&c.Memory, "mem", "m", "", "max memory in GB, or with a unit suffix such as 512Mi (default from config, 2)")
	flags.StringVarP(&c.CPU, "cpu", "c", "", "number of CPUs on a single node (default from config, 1)")
	flags.StringVarP(&c.Node, "node", "N", "", "request a specific node by name or prefix, e.g. dc01")

	flags.StringVarP(&c.CondaEnv, "conda-environment", "e", "", "activate this conda environment before running the job")
	flags.StringVar(&c.CondaProfile, "conda-profile", "", "path to the conda profile, for local conda installations")

	flags.StringVarP(&c.File, "file", "f", "", "read commands from a file, one per line")

	flags.BoolVarP(&c.DisableLog, "disable-log", "l", false, "do not record submitted jobs")
	flags.StringVarP(&c.LogPath, "log-path", "L", "", "where to record submitted jobs (default ~/.pbs_log)")

	flags.StringVarP(&c.Email, "email", "E", "", "send an email to this address when a job ends or is aborted")
	flags.StringVarP(&c.Name, "name", "n", "", "give the submitted jobs a verbose name")

	flags.StringVarP(&c.ArgsFile, "args", "a", "", `file with arguments for batch submission; they replace "{}" in the command, or are appended`)
	flags.IntVarP(&c.BatchSize, "batch-size", "b", 0, "number of arguments per job, with --args")

	flags.BoolVarP(&c.Pretend, "pretend", "p", false, "print the job descriptions instead of submitting them")

	flags.StringVar(&c.Backend, "backend", "", "batch system: pbs or slurm (default from config, pbs)")
	flags.StringVar(&c.OutputDir, "output-dir", "", "where jobs write their output (default ~/pbs-output)")
	flags.StringVar(&c.Template, "template", "", "custom job description template")
	flags.DurationVar(&c.Timeout, "timeout", 0, "give up on a batch system command after this long (0 waits forever)")

	flags.StringVar(&c.ConfigFile, "config", "", "configuration file (default $BATCHQ_CONFIG or ~/.config/batchq/config.yaml)")
}
