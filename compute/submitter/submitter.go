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

// Package submitter hands rendered jobs to the batch system and records them in the submission log.
package submitter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/joblog"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/compute/request"
	"github.com/carv-ics-forth/batchq/compute/script"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type Options struct {
	Renderer *script.Renderer
	Client   queue.Client
	Env      compute.HostEnvironment

	// Log records accepted jobs. Nil disables logging.
	Log *joblog.Log

	// Pretend renders the jobs and writes them to Out, without submitting or logging anything.
	Pretend bool
	Out     io.Writer

	// MaxEmailJobs is the largest batch that may send notifications. Zero means no limit.
	MaxEmailJobs int

	// Interval is the pause between consecutive submissions of a batch.
	Interval time.Duration

	Logger logr.Logger

	// Now is the clock used for log timestamps.
	Now func() time.Time
}

type Submitter struct {
	opts Options
}

func New(opts Options) (*Submitter, error) {
	if opts.Renderer == nil {
		return nil, errors.New("renderer is required")
	}

	if opts.Client == nil && !opts.Pretend {
		return nil, errors.New("queue client is required")
	}

	if opts.Pretend {
		if opts.Out == nil {
			opts.Out = io.Discard
		}

		opts.Log = nil
	}

	if opts.Logger.GetSink() == nil {
		opts.Logger = compute.DefaultLogger
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Submitter{opts: opts}, nil
}

// Submit renders the request, submits it, and appends the accepted job to the log.
// In pretend mode the job id is empty.
//
// A LogIOError is returned together with the job id: the job is queued but has no local record.
func (s *Submitter) Submit(ctx context.Context, req request.Request) (jobID string, err error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	description, err := s.opts.Renderer.Render(req, s.opts.Env)
	if err != nil {
		return "", err
	}

	if s.opts.Pretend {
		if _, err := fmt.Fprintln(s.opts.Out, description); err != nil {
			return "", errors.Wrap(err, "cannot print job description")
		}

		return "", nil
	}

	jobID, err = s.opts.Client.Submit(ctx, description)
	if err != nil {
		return "", compute.ExternalCommandError(req.Command, err)
	}

	logger := s.opts.Logger.WithValues("jobID", jobID)
	logger.V(1).Info("Job submitted", "command", req.Command)

	if s.opts.Log == nil {
		return jobID, nil
	}

	if err := s.opts.Log.Append(s.opts.Now(), jobID, req.Command); err != nil {
		logger.Error(err, "Job is queued but missing from the submission log")

		return jobID, err
	}

	return jobID, nil
}

/************************************************************

			Batch Submission

************************************************************/

// Result is the outcome of one command of a batch.
type Result struct {
	// Index is the position of the command in the batch, starting from 0.
	Index int

	// Line is the line number in the batch file. Zero for commands given on the command line.
	Line int

	Command string
	JobID   string
	Err     error
}

// Report collects the results of a batch, in submission order.
type Report struct {
	Results []Result

	// Err is set when the batch was rejected as a whole.
	BatchErr error
}

// Failed counts the failed commands.
func (r Report) Failed() int {
	n := 0

	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}

	return n
}

// Err aggregates the failures. Each failure names the command that caused it.
func (r Report) Err() error {
	var merr *multierror.Error

	if r.BatchErr != nil {
		merr = multierror.Append(merr, r.BatchErr)
	}

	for _, res := range r.Results {
		if res.Err == nil {
			continue
		}

		if res.Line > 0 {
			merr = multierror.Append(merr, errors.Wrapf(res.Err, "line %d '%s'", res.Line, res.Command))
		} else {
			merr = multierror.Append(merr, errors.Wrapf(res.Err, "'%s'", res.Command))
		}
	}

	return merr.ErrorOrNil()
}

// SubmitBatch submits one job per command, in order, with the settings of base.
// A failed command does not stop the batch.
func (s *Submitter) SubmitBatch(ctx context.Context, base request.Request, commands []request.Line) Report {
	var report Report

	if base.Email != "" && s.opts.MaxEmailJobs > 0 && len(commands) > s.opts.MaxEmailJobs {
		report.BatchErr = compute.MalformedRequest(base.Email,
			"sending email is not supported when submitting more than %d jobs in a batch", s.opts.MaxEmailJobs)

		return report
	}

	for i, cmd := range commands {
		if i > 0 && !s.opts.Pretend && s.opts.Interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.Interval):
			}
		}

		res := Result{Index: i, Line: cmd.Number, Command: cmd.Text}

		if err := ctx.Err(); err != nil {
			res.Err = compute.ExternalCommandError(cmd.Text, errors.Wrap(err, "not submitted"))
			report.Results = append(report.Results, res)

			continue
		}

		req := base
		req.Command = cmd.Text

		res.JobID, res.Err = s.Submit(ctx, req)

		if res.Err != nil {
			s.opts.Logger.Info("Submission failed", "line", cmd.Number, "command", cmd.Text, "err", res.Err.Error())
		}

		report.Results = append(report.Results, res)
	}

	return report
}
