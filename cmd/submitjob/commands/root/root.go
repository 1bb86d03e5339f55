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
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/backend"
	"github.com/carv-ics-forth/batchq/compute/config"
	"github.com/carv-ics-forth/batchq/compute/joblog"
	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/carv-ics-forth/batchq/compute/request"
	"github.com/carv-ics-forth/batchq/compute/script"
	"github.com/carv-ics-forth/batchq/compute/submitter"
	"github.com/carv-ics-forth/batchq/pkg/process"
	"github.com/carv-ics-forth/batchq/pkg/ui"
	"github.com/carv-ics-forth/batchq/pkg/version"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// DefaultLogger is handed to the components. It follows --log-level.
var DefaultLogger logr.Logger = compute.DefaultLogger

// submitInterval spaces out the jobs of a batch.
const submitInterval = 100 * time.Millisecond

// NewCommand creates the submitjob command.
// Flags must precede the command: everything after it belongs to the command.
func NewCommand(ctx context.Context, name string, c Opts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " [flags] CMD [CMD OPTIONS...]",
		Short: name + " submits jobs to the batch system",
		Long: name + ` submits a job to the batch system, and records it in the submission log.

Job STDERR is merged with STDOUT and written to the output directory (~/pbs-output).
Any job exceeding the run time and memory limits is killed automatically.

All options following the command belong to the command. Output redirection and pipe
symbols must be escaped, i.e. \> or \|.`,
		Example: `  # walltime is 12 hours, memory is 5GB
  ` + name + ` -w 12 -m 5 my_command.py

  # walltime and memory are the defaults; -w and -m are given to my_command.py
  ` + name + ` my_command.py -w 12 -m 5

  # one job per 10 lines of samples.txt, replacing {}
  ` + name + ` -a samples.txt -b 10 align.sh --input {} --threads 4`,
		Version:       version.BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var merr *multierror.Error

			/*---------------------------------------------------
			 * Sanitize Input Params
			 *---------------------------------------------------*/
			if len(args) == 0 && c.File == "" {
				merr = multierror.Append(merr, compute.MalformedRequest("", "missing command to submit"))
			}

			if err := submitter.CheckObsoleteSyntax(args); err != nil {
				merr = multierror.Append(merr, err)
			}

			if c.ArgsFile != "" {
				if c.File != "" {
					merr = multierror.Append(merr, compute.MalformedRequest(c.ArgsFile, "arguments (-a) only work with a single command, not -f"))
				}

				if c.BatchSize <= 0 {
					merr = multierror.Append(merr, compute.MalformedRequest(c.ArgsFile,
						"arguments without batch size; add -b to define how many arguments are given to each job"))
				}
			}

			if c.Timeout < 0 {
				merr = multierror.Append(merr, errors.New("timeout must not be negative"))
			}

			if merr.ErrorOrNil() != nil {
				return merr.ErrorOrNil()
			}

			/*---------------------------------------------------
			 * Start the execution
			 *---------------------------------------------------*/
			return runRootCommand(ctx, cmd, args, c)
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.SetVersionTemplate(ui.Logo(name, false) + "\n" + version.String() + "\n")

	installFlags(cmd.Flags(), &c)

	return cmd
}

func runRootCommand(ctx context.Context, cmd *cobra.Command, args []string, c Opts) error {
	/*---------------------------------------------------
	 * Discover System information
	 *---------------------------------------------------*/
	env := compute.DiscoverEnvironment()
	if env.Home == "" {
		return errors.New("unable to find the home directory")
	}

	cfg, err := loadConfig(env.Home, c, cmd.Flags().Changed("timeout"))
	if err != nil {
		return err
	}

	res, err := request.ParseResources(
		firstNonEmpty(c.Walltime, cfg.Defaults.Walltime),
		firstNonEmpty(c.Memory, cfg.Defaults.Memory),
		firstNonEmpty(c.CPU, cfg.Defaults.CPU),
	)
	if err != nil {
		return err
	}

	lines, err := collectCommands(args, c)
	if err != nil {
		return err
	}

	/*---------------------------------------------------
	 * Setup the batch system
	 *---------------------------------------------------*/
	runner := process.Host{Timeout: cfg.CommandTimeout}

	be, err := backend.New(cfg.Backend, runner)
	if err != nil {
		return err
	}

	if c.CondaEnv != "" {
		exists, err := submitter.CondaEnvironmentExists(ctx, runner, c.CondaEnv)
		if err != nil {
			return errors.Wrap(err, "conda environments are not supported on this system")
		}

		if !exists {
			return compute.MalformedRequest(c.CondaEnv,
				"conda environment not found, check the spelling and make sure the environment exists")
		}
	}

	node, err := submitter.ResolveNode(ctx, be.Client, c.Node)
	if err != nil {
		return err
	}

	custom, err := cfg.LoadTemplate()
	if err != nil {
		return err
	}

	renderer, err := script.NewRenderer(be.Dialect, custom, cfg.OutputDir)
	if err != nil {
		return err
	}

	/*---------------------------------------------------
	 * Submit the jobs
	 *---------------------------------------------------*/
	var log *joblog.Log

	if !c.Pretend {
		if err := paths.Output(cfg.OutputDir).EnsureExists(); err != nil {
			return err
		}

		if !c.DisableLog {
			log = joblog.New(cfg.LogPath)
			log.Logger = DefaultLogger.WithValues("log", cfg.LogPath)
		}
	}

	sub, err := submitter.New(submitter.Options{
		Renderer:     renderer,
		Client:       be.Client,
		Env:          env,
		Log:          log,
		Pretend:      c.Pretend,
		Out:          cmd.OutOrStdout(),
		MaxEmailJobs: cfg.MaxEmailJobs,
		Interval:     submitInterval,
		Logger:       DefaultLogger,
	})
	if err != nil {
		return err
	}

	base := request.Request{
		Resources:    res,
		Node:         node,
		WorkDir:      env.WorkDir,
		Email:        c.Email,
		JobName:      c.Name,
		CondaEnv:     c.CondaEnv,
		CondaProfile: cfg.CondaProfile,
	}

	report := sub.SubmitBatch(ctx, base, lines)

	if err := printJobIDs(cmd.OutOrStdout(), report, len(lines)); err != nil {
		return err
	}

	if failed := report.Failed(); failed > 0 && len(lines) > 1 {
		logrus.Warnf("%d of %d jobs failed", failed, len(lines))
	}

	return report.Err()
}

// loadConfig reads the configuration file and applies the flags on top of it.
func loadConfig(home string, c Opts, timeoutSet bool) (config.Config, error) {
	file := c.ConfigFile
	if file == "" {
		file = config.DefaultPath(home)
	}

	cfg, err := config.Load(file, home)
	if err != nil {
		return config.Config{}, err
	}

	overrides := config.Overrides{
		Backend:      c.Backend,
		OutputDir:    c.OutputDir,
		LogPath:      c.LogPath,
		Template:     c.Template,
		CondaProfile: c.CondaProfile,
	}

	if timeoutSet {
		overrides.CommandTimeout = &c.Timeout
	}

	return cfg.Override(overrides, home)
}

// collectCommands returns the commands to submit. A command given as arguments takes precedence
// over the command file. With an arguments file, the command is expanded into one command per batch.
func collectCommands(words []string, c Opts) ([]request.Line, error) {
	if len(words) == 0 {
		lines, err := readFile(c.File, request.ReadCommands)
		if err != nil {
			return nil, err
		}

		if len(lines) == 0 {
			return nil, compute.MalformedRequest(c.File, "no commands in file")
		}

		return lines, nil
	}

	if c.File != "" {
		logrus.Warn("Ignoring commands from file (-f/--file), direct command takes precedence")
	}

	if c.ArgsFile == "" {
		return []request.Line{{Text: request.JoinCommand(words)}}, nil
	}

	args, err := readFile(c.ArgsFile, request.ReadArgs)
	if err != nil {
		return nil, err
	}

	if len(args) == 0 {
		return nil, compute.MalformedRequest(c.ArgsFile, "no arguments in file")
	}

	commands, err := request.ExpandArgs(words, args, c.BatchSize)
	if err != nil {
		return nil, err
	}

	lines := make([]request.Line, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, request.Line{Text: command})
	}

	return lines, nil
}

func readFile[T any](name string, read func(io.Reader) (T, error)) (T, error) {
	var empty T

	f, err := os.Open(name)
	if err != nil {
		return empty, compute.MalformedRequest(name, "cannot read file: %v", err)
	}

	defer f.Close()

	return read(f)
}

// printJobIDs prints the id of every queued job. In a batch, each id is prefixed with the
// position of its command.
func printJobIDs(w io.Writer, report submitter.Report, total int) error {
	for _, res := range report.Results {
		if res.JobID == "" {
			continue
		}

		prefix := ""
		if total > 1 {
			prefix = fmt.Sprintf("%d: ", res.Index)
		}

		if _, err := fmt.Fprintln(w, prefix+res.JobID); err != nil {
			return errors.Wrap(err, "cannot print job id")
		}
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
