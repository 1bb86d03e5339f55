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

package commands

import (
	"context"
	"io"
	"time"

	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/compute/status"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type DetailsOpts struct {
	Running   bool
	Queued    bool
	Completed bool
	Failed    bool

	Limit  string
	Output string

	// History asks the batch system for finished jobs too.
	History bool
}

func (o DetailsOpts) states() []queue.State {
	var states []queue.State

	if o.Running {
		states = append(states, queue.StateRunning)
	}

	if o.Queued {
		states = append(states, queue.StateQueued)
	}

	if o.Completed {
		states = append(states, queue.StateCompleted)
	}

	if o.Failed {
		states = append(states, queue.StateFailed)
	}

	return states
}

func NewDetailsCommand(ctx context.Context, g *Globals) *cobra.Command {
	var o DetailsOpts

	cmd := &cobra.Command{
		Use:   "details",
		Short: "Show details of my jobs",
		Long: `Show details of my jobs, from the submission log, the job outputs and the batch system.

Without state flags, jobs in every state are shown.`,
		Example: `  # the 50 most recent jobs
  jobstatus details

  # ids of the queued jobs, for the cancel command
  qdel $(jobstatus details -q -l 0 -o jobid)

  # commands of the failed jobs of the last two days, for resubmission
  jobstatus details -f -l 2d -o cmd > retry.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := status.ParseFormat(o.Output)
			if err != nil {
				return err
			}

			limit, err := status.ParseLimit(o.Limit, time.Now())
			if err != nil {
				return err
			}

			s, err := g.Open(cmd)
			if err != nil {
				return err
			}

			collector := status.NewCollector(status.Options{
				Log:     s.Log,
				Output:  s.Output,
				Client:  s.Backend.Client,
				User:    s.Env.User,
				History: o.History,
				Logger:  DefaultLogger,
			})

			return runDetails(ctx, cmd.OutOrStdout(), collector, o, format, limit)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&o.Running, "print-running", "r", false, "print running jobs")
	flags.BoolVarP(&o.Queued, "print-queued", "q", false, "print queued jobs")
	flags.BoolVarP(&o.Completed, "print-completed", "c", false, "print completed jobs")
	flags.BoolVarP(&o.Failed, "print-failed", "f", false, "print failed, aborted and unknown jobs")
	flags.StringVarP(&o.Limit, "limit-output", "l", "50",
		`limit output to a number of lines (0 for all), a job id (and later ones), an id range (28327149-28327165), `+
			`a comma separated list of ids, a date (YYYY-MM-DD), an age (5h, 2d, 3w) or a job name`)
	flags.StringVarP(&o.Output, "output", "o", string(status.FormatTable),
		"table shows everything, jobid shows space separated ids for the cancel command, cmd shows the commands for resubmission")
	flags.BoolVar(&o.History, "history", false, "ask the batch system for finished jobs too")

	return cmd
}

// runDetails prints what could be collected, and fails if any source could not be read.
func runDetails(ctx context.Context, w io.Writer, collector *status.Collector, o DetailsOpts, format status.Format, limit status.Limit) error {
	var merr *multierror.Error

	result, err := collector.Collect(ctx)
	if err != nil {
		logrus.Warn("Some jobs may be missing")

		merr = multierror.Append(merr, err)
	}

	if result.Skipped > 0 {
		logrus.Warnf("Skipped %d entries that could not be parsed", result.Skipped)
	}

	if result.OutputFiles > status.ManyOutputFiles {
		logrus.Warnf("There are %d job outputs, consider running 'jobstatus archive'", result.OutputFiles)
	}

	if limit.Kind == status.LimitLines && limit.Lines == 0 {
		limit.Kind = status.LimitNone
	}

	jobs := status.NewStateFilter(o.states()...).Apply(result.Jobs)
	jobs = limit.Apply(jobs)

	if err := status.Write(w, format, jobs); err != nil {
		merr = multierror.Append(merr, err)
	}

	return merr.ErrorOrNil()
}
