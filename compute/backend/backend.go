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

// Package backend selects the batch system adapter.
package backend

import (
	"sort"

	"github.com/carv-ics-forth/batchq/compute/pbs"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/compute/script"
	"github.com/carv-ics-forth/batchq/compute/slurm"
	"github.com/carv-ics-forth/batchq/pkg/process"
	"github.com/pkg/errors"
)

// ErrUnknownBackend is returned for names that are not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Backend pairs the job description syntax of a batch system with its client.
type Backend struct {
	Name    string
	Dialect script.Dialect
	Client  queue.Client
}

type factory func(runner process.Runner) Backend

var registry = map[string]factory{
	"pbs": func(runner process.Runner) Backend {
		return Backend{
			Name:    "pbs",
			Dialect: pbs.Dialect{},
			Client:  pbs.NewClient(runner, pbs.DefaultCommands()),
		}
	},
	"slurm": func(runner process.Runner) Backend {
		return Backend{
			Name:    "slurm",
			Dialect: slurm.Dialect{},
			Client:  slurm.NewClient(runner, slurm.DefaultCommands()),
		}
	},
}

// New returns the named backend. Its client runs the batch system commands through runner.
func New(name string, runner process.Runner) (Backend, error) {
	f, ok := registry[name]
	if !ok {
		return Backend{}, errors.Wrapf(ErrUnknownBackend, "'%s' (known: %v)", name, Names())
	}

	return f(runner), nil
}

// Names lists the registered backends.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
