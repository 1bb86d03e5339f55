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

// Package archive moves the outputs of old jobs into tarballs and prunes the submission log.
package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/joblog"
	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/compute/status"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

type Options struct {
	Log    *joblog.Log
	Output paths.OutputPath

	// Client tells which jobs are still live. Their outputs and log entries are never archived.
	Client queue.Client
	User   string

	// Home is stripped from the paths stored in the tarball.
	Home string

	Logger logr.Logger
	Now    func() time.Time
}

type Archiver struct {
	opts Options
}

func New(opts Options) *Archiver {
	if opts.Logger.GetSink() == nil {
		opts.Logger = compute.DefaultLogger
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Archiver{opts: opts}
}

// Report describes what an archive run did.
type Report struct {
	// Tarball is the path of the new tarball. Empty if no output was archived.
	Tarball string

	// Archived lists the ids of the jobs whose output went into the tarball and was deleted.
	Archived []string

	// LogRemoved counts the log entries removed.
	LogRemoved int

	// Failed holds one ArchiveIOError per output that could not be archived or deleted.
	Failed []error
}

func (r Report) Err() error {
	var merr *multierror.Error

	for _, err := range r.Failed {
		merr = multierror.Append(merr, err)
	}

	return merr.ErrorOrNil()
}

// Archive processes the jobs that are no longer live:
//   - outputs of jobs that finished before the cut-off are added to a new tarball under the archive
//     directory, and are deleted once the tarball is complete.
//   - log entries submitted before the cut-off are removed.
//
// Running it twice with the same cut-off does nothing the second time.
func (a *Archiver) Archive(ctx context.Context, cutoff time.Time) (Report, error) {
	var report Report

	collector := status.NewCollector(status.Options{
		Log:    a.opts.Log,
		Output: a.opts.Output,
		Client: a.opts.Client,
		User:   a.opts.User,
		Logger: a.opts.Logger,
	})

	/*-- without the live view, running jobs cannot be told apart --*/
	result, err := collector.Collect(ctx)
	if err != nil {
		return report, errors.Wrap(err, "cannot tell which jobs are finished")
	}

	live := sets.NewString()

	var (
		outputs []string
		jobIDs  []string
	)

	for _, j := range result.Jobs {
		if j.Live() {
			live.Insert(j.ID)
			continue
		}

		if j.OutputFile != "" && !j.Finished.IsZero() && j.Finished.Before(cutoff) {
			outputs = append(outputs, j.OutputFile)
			jobIDs = append(jobIDs, j.ID)
		}
	}

	/*---------------------------------------------------
	 * Pack and delete the outputs
	 *---------------------------------------------------*/
	if len(outputs) > 0 {
		tarball := a.opts.Output.ArchiveFile(a.opts.Now(), strings.ReplaceAll(uuid.New().String(), "-", ""))

		if err := os.MkdirAll(a.opts.Output.ArchiveDir(), paths.OutputDirectoryPermissions); err != nil {
			return report, compute.ArchiveIOError(a.opts.Output.ArchiveDir(), err)
		}

		packed, failed, err := writeTarball(tarball, outputs, a.arcName)
		if err != nil {
			return report, compute.ArchiveIOError(tarball, err)
		}

		report.Failed = append(report.Failed, failed...)

		if len(packed) == 0 {
			_ = os.Remove(tarball)
		} else {
			report.Tarball = tarball
		}

		packedSet := sets.NewString(packed...)

		for i, path := range outputs {
			if !packedSet.Has(path) {
				continue
			}

			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				report.Failed = append(report.Failed, compute.ArchiveIOError(path, err))
				continue
			}

			report.Archived = append(report.Archived, jobIDs[i])
			a.opts.Logger.V(1).Info("Job archived", "jobID", jobIDs[i], "output", path)
		}
	}

	/*---------------------------------------------------
	 * Prune the submission log
	 *---------------------------------------------------*/
	if a.opts.Log != nil {
		removed, err := a.opts.Log.Rewrite(func(e joblog.Entry) bool {
			return !e.Time.Before(cutoff) || live.Has(queue.ShortID(e.JobID))
		})
		if err != nil {
			return report, err
		}

		report.LogRemoved = removed
	}

	return report, report.Err()
}

// arcName is the path stored in the tarball: relative to home, or to the parent of the output
// directory for outputs outside home.
func (a *Archiver) arcName(path string) string {
	if a.opts.Home != "" {
		if rel, err := filepath.Rel(a.opts.Home, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}

	return filepath.ToSlash(filepath.Join(filepath.Base(a.opts.Output.String()), filepath.Base(path)))
}
