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

package queue

import (
	"strings"

	"github.com/pkg/errors"
)

// State of a job, as tracked by the batch system: queued -> running -> {completed, failed, aborted}.
type State string

const (
	StateQueued    State = "Queued"
	StateRunning   State = "Running"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
	StateAborted   State = "Aborted"
	StateUnknown   State = "Unknown"
)

// States lists the known states in lifecycle order.
var States = []State{StateQueued, StateRunning, StateCompleted, StateFailed, StateAborted, StateUnknown}

// Final reports whether the job has left the queue.
func (s State) Final() bool {
	switch s {
	case StateCompleted, StateFailed, StateAborted:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	return string(s)
}

// ParseState accepts a state name, case-insensitive, or its first letter.
func ParseState(s string) (State, error) {
	v := strings.ToLower(strings.TrimSpace(s))

	for _, state := range States {
		name := strings.ToLower(string(state))
		if v == name || (len(v) == 1 && strings.HasPrefix(name, v)) {
			return state, nil
		}
	}

	return StateUnknown, errors.Errorf("unknown job state '%s'", s)
}

// StateFromExit derives the final state of a job from its exit status.
// A missing status ("-" or "") counts as success.
func StateFromExit(exitStatus string) State {
	switch strings.TrimSpace(exitStatus) {
	case "", "-", "0":
		return StateCompleted
	default:
		return StateFailed
	}
}
