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
	stdjson "encoding/json"
	"fmt"
	"strings"

	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/json"
)

// NodeInfo is a node as reported by 'scontrol --json show nodes'.
type NodeInfo struct {
	Name string `json:"name"`

	// State is a string in older releases, and a list of flags in newer ones.
	State stdjson.RawMessage `json:"state"`

	CPUs      uint64 `json:"cpus"`
	AllocCPUs uint64 `json:"alloc_cpus"`

	// RealMemory ... reported in MegaBytes
	RealMemory  uint64 `json:"real_memory"`
	AllocMemory uint64 `json:"alloc_memory"`

	// CPULoad is in hundredths, either as a number or as {"number": N}.
	CPULoad stdjson.RawMessage `json:"cpu_load"`

	Partitions []string `json:"partitions"`
}

// States returns the lowercase node state flags.
func (i NodeInfo) States() []string {
	var list []string

	if err := json.Unmarshal(i.State, &list); err != nil {
		var single string
		if err := json.Unmarshal(i.State, &single); err != nil {
			return nil
		}

		list = strings.Split(single, "+")
	}

	states := make([]string, 0, len(list))
	for _, s := range list {
		states = append(states, strings.ToLower(s))
	}

	return states
}

// Load formats the load average, e.g., "1.98".
func (i NodeInfo) Load() string {
	var hundredths float64

	if err := json.Unmarshal(i.CPULoad, &hundredths); err != nil {
		var number struct {
			Number float64 `json:"number"`
		}

		if err := json.Unmarshal(i.CPULoad, &number); err != nil {
			return ""
		}

		hundredths = number.Number
	}

	return fmt.Sprintf("%.2f", hundredths/100)
}

// Node converts the Slurm-reported stats.
func (i NodeInfo) Node() queue.Node {
	return queue.Node{
		Name:         i.Name,
		States:       i.States(),
		CPUs:         int(i.CPUs),
		UsedCPUs:     int(i.AllocCPUs),
		MemoryMB:     int64(i.RealMemory),
		UsedMemoryMB: int64(i.AllocMemory),
		Load:         i.Load(),
	}
}

type Stats struct {
	Nodes []NodeInfo `json:"nodes"`
}

// Nodes decodes the node stats, and attaches the running jobs listed by squeue.
func (c *Client) Nodes(ctx context.Context) ([]queue.Node, error) {
	out, err := c.Runner.Run(ctx, nil, c.Commands.ControlCmd, "--json", "show", "nodes")
	if err != nil {
		return nil, errors.Wrap(err, "stats query error")
	}

	var info Stats

	if err := json.Unmarshal(out, &info); err != nil {
		return nil, errors.Wrap(err, "stats decoding error")
	}

	jobs, err := c.Jobs(ctx)
	if err != nil {
		return nil, err
	}

	perNode := make(map[string][]string)

	for _, r := range jobs.Records {
		if r.State == queue.StateRunning && r.Node != "" {
			perNode[r.Node] = append(perNode[r.Node], queue.ShortID(r.JobID))
		}
	}

	nodes := make([]queue.Node, 0, len(info.Nodes))

	for _, i := range info.Nodes {
		node := i.Node()
		node.Jobs = perNode[node.Name]

		nodes = append(nodes, node)
	}

	return nodes, nil
}
