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
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/pkg/ui"
	"k8s.io/apimachinery/pkg/util/sets"
)

// OrphansLabel groups the jobs a node runs that the batch system does not list.
const OrphansLabel = "ORPHANS"

// Owner lists the jobs of one user on a node.
type Owner struct {
	User string
	Jobs []string
}

// NodeView is a node with the jobs that run on it.
type NodeView struct {
	queue.Node

	Owners []Owner
}

// Offline reports whether the node was taken out of service.
func (n NodeView) Offline() bool {
	for _, s := range n.States {
		switch strings.ToLower(s) {
		case "offline", "drain", "drained", "draining":
			return true
		}
	}

	return false
}

// BuildNodes joins nodes with the running jobs. Nodes that are not in all of the given states
// are dropped. Offline nodes come last, otherwise nodes are sorted by name.
//
// Used memory is the sum of the memory limits of the jobs on the node, unless the batch
// system reports it.
func BuildNodes(nodes []queue.Node, listing queue.Listing, states []string) []NodeView {
	byID := map[string]queue.Record{}
	byNode := map[string][]queue.Record{}

	for _, r := range listing.Records {
		if r.State.Final() {
			continue
		}

		byID[queue.ShortID(r.JobID)] = r

		if r.Node != "" {
			byNode[r.Node] = append(byNode[r.Node], r)
		}
	}

	views := make([]NodeView, 0, len(nodes))

	for _, n := range nodes {
		if len(states) > 0 && !n.HasStates(states) {
			continue
		}

		view := NodeView{Node: n}

		var (
			owners   = map[string]*Owner{}
			order    []string
			reserved int64
		)

		own := func(user string, id string) {
			if _, ok := owners[user]; !ok {
				owners[user] = &Owner{User: user}
				order = append(order, user)
			}

			owners[user].Jobs = append(owners[user].Jobs, id)
		}

		for _, r := range byNode[n.Name] {
			own(r.User, queue.ShortID(r.JobID))
			reserved += r.MemoryLimitMB
		}

		seen := sets.NewString()

		for _, id := range n.Jobs {
			if seen.Has(id) {
				continue
			}

			seen.Insert(id)

			if r, ok := byID[id]; !ok || r.Node == "" {
				own(OrphansLabel, id)
			}
		}

		for _, user := range order {
			view.Owners = append(view.Owners, *owners[user])
		}

		if view.UsedMemoryMB == 0 {
			view.UsedMemoryMB = reserved
		}

		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Offline() != views[j].Offline() {
			return !views[i].Offline()
		}

		return views[i].Name < views[j].Name
	})

	return views
}

var nodeHeaders = []string{"Node", "Status", "Load", "Used cores", "Used memory", "Jobs"}

// WriteNodes prints one row per node. With owners, the last column lists the jobs per user,
// one user per row, instead of the core usage bar.
func WriteNodes(w io.Writer, views []NodeView, owners bool) error {
	var rows [][]string

	for _, v := range views {
		row := []string{
			v.Name,
			strings.Join(v.States, ","),
			v.Load,
			ratio(int64(v.UsedCPUs), int64(v.CPUs), "%3d/%3d (%3d%%)", 1),
			ratio(v.UsedMemoryMB, v.MemoryMB, "%5.1f/%5.1fG (%3d%%)", 1024),
			usageBar(v.UsedCPUs, v.CPUs),
		}

		if !owners {
			rows = append(rows, row)
			continue
		}

		row[len(row)-1] = ""

		for i, o := range v.Owners {
			cell := fmt.Sprintf("%s: %s", o.User, strings.Join(o.Jobs, " "))

			if i == 0 {
				row[len(row)-1] = cell
				continue
			}

			rows = append(rows, row)
			row = []string{"", "", "", "", "", cell}
		}

		rows = append(rows, row)
	}

	return ui.Table(w, nodeHeaders, rows)
}

// ratio formats used/all with a percentage. Counts are divided by scale; a scale other than 1
// prints fractional values.
func ratio(used, all int64, format string, scale int64) string {
	if all <= 0 {
		return "N/A"
	}

	percent := int(float64(used) / float64(all) * 100)

	if scale == 1 {
		return fmt.Sprintf(format, used, all, percent)
	}

	return fmt.Sprintf(format, float64(used)/float64(scale), float64(all)/float64(scale), percent)
}

func usageBar(used, all int) string {
	if used > all {
		used = all
	}

	if used < 0 || all <= 0 {
		return ""
	}

	return strings.Repeat("*", used) + strings.Repeat("-", all-used)
}
