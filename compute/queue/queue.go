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

// Package queue describes what the tools need from a batch system.
// Adapters for specific systems live in sibling packages.
package queue

//go:generate mockgen -destination=mock/queue_mock.go -package=queue_mock github.com/carv-ics-forth/batchq/compute/queue Client

import (
	"context"
	"strings"
	"time"
)

// Client talks to the batch system. Cancelling jobs is left to the batch system's own tools.
type Client interface {
	// Submit hands the job description to the batch system and returns the assigned job id.
	Submit(ctx context.Context, description string) (string, error)

	// Jobs lists the jobs the batch system currently knows about, for all users.
	Jobs(ctx context.Context) (Listing, error)

	// History lists finished jobs since the given time, as far as the batch system remembers them.
	History(ctx context.Context, since time.Time) (Listing, error)

	// Nodes lists the compute nodes.
	Nodes(ctx context.Context) ([]Node, error)
}

// Listing is the parsed output of a status command.
type Listing struct {
	Records []Record

	// Skipped counts the entries that could not be parsed.
	Skipped int
}

// Record is the status of one job. Fields the source does not provide are left zero.
type Record struct {
	JobID string
	Name  string
	User  string
	Queue string
	State State

	// RawState is the state as reported by the batch system, e.g., "R" or "PENDING".
	RawState string

	Node       string
	ExitStatus string

	Submitted time.Time
	Started   time.Time
	Finished  time.Time

	Walltime      time.Duration
	WalltimeLimit time.Duration
	MemoryUsedMB  int64
	MemoryLimitMB int64

	Command    string
	OutputPath string

	// Live is set when the batch system still tracks the job.
	Live bool
}

// ShortID is the numeric part of a job id, e.g., "12345" for "12345.server.example.org".
func ShortID(jobID string) string {
	id := strings.TrimSpace(jobID)

	if i := strings.IndexByte(id, '.'); i >= 0 {
		id = id[:i]
	}

	return id
}

// Node is a compute node.
type Node struct {
	Name   string
	States []string

	CPUs     int
	UsedCPUs int

	MemoryMB     int64
	UsedMemoryMB int64

	Load string

	// Jobs are the short ids of the jobs running on the node.
	Jobs []string
}

// Up reports whether the node accepts jobs.
func (n Node) Up() bool {
	for _, s := range n.States {
		switch strings.ToLower(s) {
		case "job-exclusive", "job-sharing", "reserve", "free", "busy", "time-shared",
			"idle", "mixed", "allocated", "completing":
			return true
		}
	}

	return false
}

// HasStates reports whether the node is in all the given states.
func (n Node) HasStates(states []string) bool {
	have := make(map[string]struct{}, len(n.States))
	for _, s := range n.States {
		have[strings.ToLower(s)] = struct{}{}
	}

	for _, s := range states {
		if _, ok := have[strings.ToLower(s)]; !ok {
			return false
		}
	}

	return true
}
