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

package pbs

import (
	"context"
	"regexp"
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

			Initiate PBS Connector

************************************************************/

// Commands are the PBS executables.
type Commands struct {
	SubmitCmd string
	StatCmd   string
	NodesCmd  string
}

// DefaultCommands resolves the PBS executables from PATH.
func DefaultCommands() Commands {
	return Commands{
		SubmitCmd: path.Resolve("qsub"),
		StatCmd:   path.Resolve("qstat"),
		NodesCmd:  path.Resolve("pbsnodes"),
	}
}

// validJobID accepts "123", "123.server.example.org", and array jobs "123[].server".
var validJobID = regexp.MustCompile(`^\d+(\[\d*\])?(\.\S+)?$`)

// Client is a queue.Client for PBS/Torque.
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
		Logger:   compute.DefaultLogger.WithValues("backend", "pbs"),
	}
}

// Submit feeds the job description to qsub and returns the job id it prints.
func (c *Client) Submit(ctx context.Context, description string) (string, error) {
	out, err := c.Runner.Run(ctx, []byte(description), c.Commands.SubmitCmd)
	if err != nil {
		return "", errors.Wrapf(err, "qsub submission error. out : '%s'", strings.TrimSpace(string(out)))
	}

	jobID := strings.TrimSpace(string(out))
	if !validJobID.MatchString(jobID) {
		return "", errors.Errorf("qsub returned no job id. out : '%s'", jobID)
	}

	c.Logger.V(1).Info("PBS: Job Submitted", "jobID", jobID)

	return jobID, nil
}

// Jobs parses 'qstat -x', which lists the jobs of all users, including recently completed ones.
func (c *Client) Jobs(ctx context.Context) (queue.Listing, error) {
	out, err := c.Runner.Run(ctx, nil, c.Commands.StatCmd, "-x")
	if err != nil {
		return queue.Listing{}, errors.Wrap(err, "qstat query error")
	}

	listing, err := ParseJobs(out)
	if err != nil {
		return queue.Listing{}, err
	}

	if listing.Skipped > 0 {
		c.Logger.Info("PBS: omit unparsable jobs", "skipped", listing.Skipped)
	}

	return listing, nil
}

// History returns the completed jobs that qstat still remembers. Torque drops them after
// keep_completed seconds, so older jobs are only known through their output files.
func (c *Client) History(ctx context.Context, since time.Time) (queue.Listing, error) {
	all, err := c.Jobs(ctx)
	if err != nil {
		return queue.Listing{}, err
	}

	history := queue.Listing{Skipped: all.Skipped}

	for _, r := range all.Records {
		if !r.State.Final() {
			continue
		}

		if !r.Finished.IsZero() && r.Finished.Before(since) {
			continue
		}

		history.Records = append(history.Records, r)
	}

	return history, nil
}

// Nodes parses 'pbsnodes -x'.
func (c *Client) Nodes(ctx context.Context) ([]queue.Node, error) {
	out, err := c.Runner.Run(ctx, nil, c.Commands.NodesCmd, "-x")
	if err != nil {
		return nil, errors.Wrap(err, "pbsnodes query error")
	}

	return ParseNodes(out)
}
