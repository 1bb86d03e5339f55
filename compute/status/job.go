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

// Package status reconstructs the jobs of the current user from the submission log, the job
// outputs and the batch system, and formats them for the status tool.
package status

import (
	"strconv"
	"time"

	"github.com/carv-ics-forth/batchq/compute/joblog"
	"github.com/carv-ics-forth/batchq/compute/queue"
)

// Job is what is known about one job, merged from every source.
type Job struct {
	// ID is the short job id, e.g., "12345".
	ID string

	Name     string
	Queue    string
	State    queue.State
	RawState string

	ExitStatus string
	Node       string

	Submitted time.Time
	Started   time.Time
	Finished  time.Time

	Walltime      time.Duration
	WalltimeLimit time.Duration
	MemoryUsedMB  int64
	MemoryLimitMB int64

	Command string

	// OutputFile is the path of the job output, if one was found.
	OutputFile string

	// LogEntry is the submission log entry, if any.
	LogEntry *joblog.Entry

	// InQueue is set when the batch system reported the job in its current view.
	InQueue bool
}

// Live reports whether the batch system still tracks the job as queued or running.
func (j *Job) Live() bool {
	return j.InQueue && !j.State.Final()
}

// Number is the numeric part of the id, for range comparisons. Ids without leading digits give -1.
func (j *Job) Number() int64 {
	return idNumber(j.ID)
}

// ReferenceTime is the finish time, or the submission time of jobs that have not finished.
func (j *Job) ReferenceTime() time.Time {
	switch {
	case !j.Finished.IsZero():
		return j.Finished
	case !j.Submitted.IsZero():
		return j.Submitted
	default:
		return j.Started
	}
}

func idNumber(id string) int64 {
	end := 0
	for end < len(id) && id[end] >= '0' && id[end] <= '9' {
		end++
	}

	n, err := strconv.ParseInt(id[:end], 10, 64)
	if err != nil {
		return -1
	}

	return n
}

/*---------------------------------------------------
 * Merge rules
 *---------------------------------------------------*/

func (j *Job) applyLog(e joblog.Entry) {
	entry := e

	j.LogEntry = &entry
	j.Submitted = e.Time
	j.Command = e.Command
}

// applyRecord merges a record from the batch system. Values already known are kept unless
// the record has them too.
func (j *Job) applyRecord(r queue.Record, current bool) {
	if r.Name != "" {
		j.Name = r.Name
	}

	if r.Queue != "" {
		j.Queue = r.Queue
	}

	// the live view wins over history and output files
	if current || j.State == "" || j.State == queue.StateUnknown {
		j.State = r.State
		j.RawState = r.RawState
	}

	if current {
		j.InQueue = true
	}

	setString(&j.ExitStatus, r.ExitStatus)
	setString(&j.Node, r.Node)
	setString(&j.Command, r.Command)

	setTime(&j.Submitted, r.Submitted)
	setTime(&j.Started, r.Started)
	setTime(&j.Finished, r.Finished)

	if r.Walltime > 0 {
		j.Walltime = r.Walltime
	}

	if r.WalltimeLimit > 0 {
		j.WalltimeLimit = r.WalltimeLimit
	}

	if r.MemoryUsedMB > 0 {
		j.MemoryUsedMB = r.MemoryUsedMB
	}

	if r.MemoryLimitMB > 0 {
		j.MemoryLimitMB = r.MemoryLimitMB
	}
}

// applyOutput merges a parsed job output. A job that wrote its exit status has left the queue.
func (j *Job) applyOutput(o Output) {
	j.OutputFile = o.Path

	if o.Name != "" {
		j.Name = o.Name
	}

	if j.Command == "" {
		j.Command = o.Command
	}

	if o.Host != "" {
		j.Node = o.Host
	}

	if !j.Live() {
		if o.Finished() {
			j.ExitStatus = o.ExitStatus
			j.State = queue.StateFromExit(o.ExitStatus)
		}

		j.Finished = o.ModTime
	}

	if o.Walltime > 0 {
		j.Walltime = o.Walltime
	}

	if o.WalltimeLimit > 0 {
		j.WalltimeLimit = o.WalltimeLimit
	}

	if o.MemoryUsedMB > 0 {
		j.MemoryUsedMB = o.MemoryUsedMB
	}

	if o.MemoryLimitMB > 0 {
		j.MemoryLimitMB = o.MemoryLimitMB
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setTime(dst *time.Time, v time.Time) {
	if !v.IsZero() {
		*dst = v
	}
}
