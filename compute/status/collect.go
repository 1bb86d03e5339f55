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

package status

import (
	"context"
	"os"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/joblog"
	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
)

// ManyOutputFiles is the number of output files above which the user is advised to archive.
const ManyOutputFiles = 1000

type Options struct {
	Log    *joblog.Log
	Output paths.OutputPath

	// Client is asked for the jobs of User. Nil skips the batch system.
	Client queue.Client
	User   string

	// History asks the batch system for finished jobs too, since the oldest log entry.
	History bool

	Logger logr.Logger
}

// Collector merges the submission log, the job outputs and the batch system into one list.
type Collector struct {
	opts Options
}

func NewCollector(opts Options) *Collector {
	if opts.Logger.GetSink() == nil {
		opts.Logger = compute.DefaultLogger
	}

	return &Collector{opts: opts}
}

// Result is the merged list of jobs, in the order they were first seen: log entries in file
// order, then jobs known only from their output, then jobs known only to the batch system.
type Result struct {
	Jobs []*Job

	// Skipped counts the log lines, output files and batch system entries that could not be parsed.
	Skipped int

	// OutputFiles counts the job outputs in the output directory.
	OutputFiles int
}

// Find returns the job with the given id, if any.
func (r Result) Find(jobID string) (*Job, bool) {
	id := queue.ShortID(jobID)

	for _, j := range r.Jobs {
		if j.ID == id {
			return j, true
		}
	}

	return nil, false
}

type index struct {
	jobs  map[string]*Job
	order []*Job
}

func (idx *index) get(jobID string) *Job {
	id := queue.ShortID(jobID)

	if j, ok := idx.jobs[id]; ok {
		return j
	}

	j := &Job{ID: id}
	idx.jobs[id] = j
	idx.order = append(idx.order, j)

	return j
}

// Collect reads every source. A source that fails is reported in the error, and the jobs
// from the other sources are still returned.
func (c *Collector) Collect(ctx context.Context) (Result, error) {
	var (
		result Result
		merr   *multierror.Error
		idx    = index{jobs: map[string]*Job{}}
	)

	/*---------------------------------------------------
	 * Submission log
	 *---------------------------------------------------*/
	var oldest time.Time

	if c.opts.Log != nil {
		entries, skipped, err := c.opts.Log.ReadAll()
		if err != nil {
			merr = multierror.Append(merr, err)
		}

		result.Skipped += skipped

		for _, e := range entries {
			idx.get(e.JobID).applyLog(e)

			if oldest.IsZero() || e.Time.Before(oldest) {
				oldest = e.Time
			}
		}
	}

	/*---------------------------------------------------
	 * Job outputs. Applied last, once the live state is known.
	 *---------------------------------------------------*/
	var outputs []Output

	if c.opts.Output != "" {
		err := c.opts.Output.WalkOutputFiles(func(file paths.OutputFile, _ os.FileInfo) error {
			result.OutputFiles++

			out, err := ReadOutput(file)
			if err != nil {
				result.Skipped++
				c.opts.Logger.Info("WARNING: skip unreadable output", "path", file.Path, "err", err.Error())

				return nil
			}

			idx.get(out.JobID)
			outputs = append(outputs, out)

			return nil
		})
		if err != nil {
			merr = multierror.Append(merr, err)
		}

		if result.OutputFiles > ManyOutputFiles {
			c.opts.Logger.V(1).Info("Output directory holds many files",
				"files", result.OutputFiles, "dir", c.opts.Output.String())
		}
	}

	/*---------------------------------------------------
	 * Batch system
	 *---------------------------------------------------*/
	if c.opts.Client != nil {
		listing, err := c.opts.Client.Jobs(ctx)
		if err != nil {
			merr = multierror.Append(merr, compute.ExternalCommandError("jobs", err))
		}

		result.Skipped += listing.Skipped

		for _, r := range listing.Records {
			if c.opts.User == "" || r.User == c.opts.User {
				idx.get(r.JobID).applyRecord(r, true)
			}
		}

		if c.opts.History && !oldest.IsZero() {
			history, err := c.opts.Client.History(ctx, oldest)
			if err != nil {
				merr = multierror.Append(merr, compute.ExternalCommandError("history", err))
			}

			result.Skipped += history.Skipped

			for _, r := range history.Records {
				if c.opts.User == "" || r.User == c.opts.User {
					idx.get(r.JobID).applyRecord(r, false)
				}
			}
		}
	}

	for _, out := range outputs {
		idx.get(out.JobID).applyOutput(out)
	}

	for _, j := range idx.order {
		if j.State == "" {
			j.State = queue.StateUnknown
		}
	}

	result.Jobs = idx.order

	return result, merr.ErrorOrNil()
}
