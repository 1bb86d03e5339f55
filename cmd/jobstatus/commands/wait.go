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
	"github.com/carv-ics-forth/batchq/pkg/filenotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type WaitOpts struct {
	MaxWait time.Duration
	Poll    bool
}

func NewWaitCommand(ctx context.Context, g *Globals) *cobra.Command {
	var o WaitOpts

	cmd := &cobra.Command{
		Use:   "wait ID...",
		Short: "Wait for jobs to finish",
		Long: `Wait until every job has written its exit status, then show the jobs.
Fails if any of the jobs did not complete successfully.

Job outputs written by other hosts on a shared filesystem may not raise file events.
Use --poll in that case.`,
		Example: `  jobstatus wait $(submitjob -f steps.txt | cut -d' ' -f2)`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.MaxWait < 0 {
				return errors.New("max-wait must not be negative")
			}

			s, err := g.Open(cmd)
			if err != nil {
				return err
			}

			watcher := filenotify.New(s.Config.PollInterval, o.Poll)
			defer watcher.Close()

			waitCtx := ctx
			if o.MaxWait > 0 {
				var cancel context.CancelFunc

				waitCtx, cancel = context.WithTimeout(ctx, o.MaxWait)
				defer cancel()
			}

			if err := status.WaitForOutputs(waitCtx, watcher, s.Output, args); err != nil {
				return err
			}

			collector := status.NewCollector(status.Options{
				Log:    s.Log,
				Output: s.Output,
				Logger: DefaultLogger,
			})

			result, err := collector.Collect(ctx)
			if err != nil {
				return err
			}

			return reportWaited(cmd.OutOrStdout(), result, args)
		},
	}

	cmd.Flags().DurationVar(&o.MaxWait, "max-wait", 0, "give up after this long (0 waits forever)")
	cmd.Flags().BoolVar(&o.Poll, "poll", false, "poll the output directory instead of waiting for file events")

	return cmd
}

// reportWaited prints the jobs and fails if any of them did not complete.
func reportWaited(w io.Writer, result status.Result, jobIDs []string) error {
	var (
		jobs   []*status.Job
		failed []string
	)

	for _, id := range jobIDs {
		j, ok := result.Find(id)
		if !ok {
			failed = append(failed, id)
			continue
		}

		jobs = append(jobs, j)

		if j.State != queue.StateCompleted {
			failed = append(failed, j.ID)
		}
	}

	if err := status.Write(w, status.FormatTable, jobs); err != nil {
		return err
	}

	if len(failed) > 0 {
		return errors.Errorf("%d of %d jobs did not complete: %v", len(failed), len(jobIDs), failed)
	}

	return nil
}
