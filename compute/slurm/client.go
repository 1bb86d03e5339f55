// Copyright © 2022 FORTH-ICS
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

package slurm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/pkg/path"
	"github.com/carv-ics-forth/batchq/pkg/process"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

/************************************************************

			Initiate Slurm Connector

************************************************************/

// Commands are the Slurm executables.
type Commands struct {
	SubmitCmd  string
	QueueCmd   string
	AcctCmd    string
	ControlCmd string
}

// DefaultCommands resolves the Slurm executables from PATH.
func DefaultCommands() Commands {
	return Commands{
		SubmitCmd:  path.Resolve("sbatch"),
		QueueCmd:   path.Resolve("squeue"),
		AcctCmd:    path.Resolve("sacct"),
		ControlCmd: path.Resolve("scontrol"),
	}
}

// Client is a queue.Client for Slurm.
type Client struct {
	Runner   process.Runner
	Commands Commands
	Logger   logr.Logger
}

var _ queue.Client = (*Client)(nil)

func NewClient(runner process.Runner, commands Commands) *Client {
	return &Client{
		Runner:   runner,
		Commands: commands,
		Logger:   compute.DefaultLogger.WithValues("backend", "slurm"),
	}
}

var expectedOutput = regexp.MustCompile(`Submitted batch job (?P<jid>\d+)`)

// Submit feeds the job description to sbatch and returns the job id it prints.
func (c *Client) Submit(ctx context.Context, description string) (string, error) {
	out, err := c.Runner.Run(ctx, []byte(description), c.Commands.SubmitCmd)
	if err != nil {
		return "", errors.Wrapf(err, "sbatch submission error. out : '%s'", strings.TrimSpace(string(out)))
	}

	jid := expectedOutput.FindStringSubmatch(string(out))
	if jid == nil {
		return "", errors.Errorf("sbatch returned no job id. out : '%s'", strings.TrimSpace(string(out)))
	}

	if _, err := strconv.Atoi(jid[1]); err != nil {
		return "", errors.Wrapf(err, "invalid job id '%s'", jid[1])
	}

	c.Logger.V(1).Info("SLURM: Job Submitted", "jobID", jid[1])

	return jid[1], nil
}

/************************************************************

			Slurm Queue

************************************************************/

// squeueFormat must stay in sync with parseQueueLine.
const squeueFormat = "%i|%j|%u|%P|%T|%M|%l|%m|%V|%S|%N"

// Jobs parses squeue, which lists pending and running jobs of all users, and recently finished ones.
func (c *Client) Jobs(ctx context.Context) (queue.Listing, error) {
	out, err := c.Runner.Run(ctx, nil, c.Commands.QueueCmd, "--noheader", "--all", "--format="+squeueFormat)
	if err != nil {
		return queue.Listing{}, errors.Wrap(err, "squeue query error")
	}

	listing := parseLines(out, parseQueueLine)

	if listing.Skipped > 0 {
		c.Logger.Info("SLURM: omit unparsable jobs", "skipped", listing.Skipped)
	}

	return listing, nil
}

func parseQueueLine(fields []string) (queue.Record, bool) {
	if len(fields) != 11 || fields[0] == "" {
		return queue.Record{}, false
	}

	r := queue.Record{
		JobID:     fields[0],
		Name:      fields[1],
		User:      fields[2],
		Queue:     fields[3],
		RawState:  fields[4],
		State:     mapState(fields[4], ""),
		Submitted: parseTimestamp(fields[8]),
		Started:   parseTimestamp(fields[9]),
		Node:      nodeName(fields[10]),
	}

	r.Live = !r.State.Final()
	r.Walltime, _ = queue.ParseClock(fields[5])
	r.WalltimeLimit, _ = queue.ParseClock(fields[6])
	r.MemoryLimitMB, _ = queue.ParseSizeMB(trimMemory(fields[7]))

	return r, true
}

// sacctFormat must stay in sync with parseAcctLine.
const sacctFormat = "JobID,JobName,User,Partition,State,ExitCode,Submit,Start,End,Elapsed,Timelimit,ReqMem,NodeList"

// History parses sacct, limited to the job allocations of the invoking user.
func (c *Client) History(ctx context.Context, since time.Time) (queue.Listing, error) {
	if since.IsZero() {
		since = time.Unix(0, 0)
	}

	out, err := c.Runner.Run(ctx, nil, c.Commands.AcctCmd,
		"--noheader",
		"--parsable2",
		"--allocations",
		"--starttime="+since.Format(timestampLayout),
		"--format="+sacctFormat,
	)
	if err != nil {
		return queue.Listing{}, errors.Wrap(err, "sacct query error")
	}

	all := parseLines(out, parseAcctLine)

	history := queue.Listing{Skipped: all.Skipped}

	for _, r := range all.Records {
		if r.State.Final() {
			history.Records = append(history.Records, r)
		}
	}

	return history, nil
}

func parseAcctLine(fields []string) (queue.Record, bool) {
	if len(fields) != 13 || fields[0] == "" {
		return queue.Record{}, false
	}

	exitCode, signal, _ := strings.Cut(fields[5], ":")

	r := queue.Record{
		JobID:      fields[0],
		Name:       fields[1],
		User:       fields[2],
		Queue:      fields[3],
		RawState:   fields[4],
		ExitStatus: exitCode,
		Submitted:  parseTimestamp(fields[6]),
		Started:    parseTimestamp(fields[7]),
		Finished:   parseTimestamp(fields[8]),
		Node:       nodeName(fields[12]),
	}

	r.State = mapState(fields[4], exitCode)
	if r.State == queue.StateCompleted && signal != "" && signal != "0" {
		r.State = queue.StateAborted
	}

	r.Live = !r.State.Final()
	r.Walltime, _ = queue.ParseClock(fields[9])
	r.WalltimeLimit, _ = queue.ParseClock(fields[10])
	r.MemoryLimitMB, _ = queue.ParseSizeMB(trimMemory(fields[11]))

	return r, true
}

func parseLines(out []byte, parse func(fields []string) (queue.Record, bool)) queue.Listing {
	var listing queue.Listing

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		record, ok := parse(strings.Split(line, "|"))
		if !ok {
			listing.Skipped++
			continue
		}

		listing.Records = append(listing.Records, record)
	}

	return listing
}

// mapState translates Slurm job states, e.g., "PENDING" or "CANCELLED by 1000".
func mapState(state string, exitCode string) queue.State {
	fields := strings.Fields(state)
	if len(fields) == 0 {
		return queue.StateUnknown
	}

	switch strings.TrimSuffix(fields[0], "+") {
	case "PENDING", "REQUEUED", "REQUEUE_HOLD", "REQUEUE_FED", "RESV_DEL_HOLD",
		"SUSPENDED", "STOPPED", "CONFIGURING", "RESIZING":
		return queue.StateQueued
	case "RUNNING", "COMPLETING", "STAGE_OUT", "SIGNALING":
		return queue.StateRunning
	case "COMPLETED":
		return queue.StateFromExit(exitCode)
	case "FAILED", "OUT_OF_MEMORY":
		return queue.StateFailed
	case "CANCELLED", "TIMEOUT", "NODE_FAIL", "BOOT_FAIL", "DEADLINE", "PREEMPTED", "REVOKED", "SPECIAL_EXIT":
		return queue.StateAborted
	default:
		return queue.StateUnknown
	}
}

const timestampLayout = "2006-01-02T15:04:05"

// parseTimestamp returns the zero time for "N/A", "Unknown", and "None".
func parseTimestamp(s string) time.Time {
	t, err := time.ParseInLocation(timestampLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}
	}

	return t
}

// trimMemory removes the per-node and per-cpu markers of older Slurm versions, e.g., "2560Mn".
func trimMemory(s string) string {
	s = strings.TrimSpace(s)

	if n := len(s); n > 1 && (s[n-1] == 'n' || s[n-1] == 'c') {
		return s[:n-1]
	}

	return s
}

// nodeName ignores placeholders such as "(null)" and "None assigned".
func nodeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "() ") {
		return ""
	}

	return s
}
