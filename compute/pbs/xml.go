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
	"bytes"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/pkg/errors"
)

/************************************************************

			qstat -x

************************************************************/

type xmlJobs struct {
	Jobs []xmlJob `xml:"Job"`
}

type xmlJob struct {
	JobID      string `xml:"Job_Id"`
	Name       string `xml:"Job_Name"`
	Owner      string `xml:"Job_Owner"`
	EUser      string `xml:"euser"`
	State      string `xml:"job_state"`
	Queue      string `xml:"queue"`
	ExecHost   string `xml:"exec_host"`
	ExitStatus string `xml:"exit_status"`
	QTime      string `xml:"qtime"`
	StartTime  string `xml:"start_time"`
	CompTime   string `xml:"comp_time"`
	OutputPath string `xml:"Output_Path"`

	ResourceList struct {
		Mem      string `xml:"mem"`
		Walltime string `xml:"walltime"`
	} `xml:"Resource_List"`

	ResourcesUsed struct {
		Mem      string `xml:"mem"`
		Walltime string `xml:"walltime"`
	} `xml:"resources_used"`
}

// ParseJobs parses the XML printed by 'qstat -x'. Jobs without an id are skipped.
func ParseJobs(out []byte) (queue.Listing, error) {
	var listing queue.Listing

	if len(bytes.TrimSpace(out)) == 0 {
		// qstat prints nothing when there are no jobs.
		return listing, nil
	}

	var data xmlJobs
	if err := xml.Unmarshal(out, &data); err != nil {
		return listing, errors.Wrap(err, "qstat decoding error")
	}

	for _, job := range data.Jobs {
		record, ok := job.record()
		if !ok {
			listing.Skipped++
			continue
		}

		listing.Records = append(listing.Records, record)
	}

	return listing, nil
}

func (j xmlJob) record() (queue.Record, bool) {
	if strings.TrimSpace(j.JobID) == "" {
		return queue.Record{}, false
	}

	user := j.EUser
	if user == "" {
		user, _, _ = strings.Cut(j.Owner, "@")
	}

	r := queue.Record{
		JobID:      strings.TrimSpace(j.JobID),
		Name:       j.Name,
		User:       user,
		Queue:      j.Queue,
		RawState:   j.State,
		Node:       execNode(j.ExecHost),
		ExitStatus: j.ExitStatus,
		Submitted:  epoch(j.QTime),
		Started:    epoch(j.StartTime),
		Finished:   epoch(j.CompTime),
		OutputPath: strings.TrimPrefix(j.OutputPath, hostPrefix(j.OutputPath)),
	}

	r.State = mapState(j.State, j.ExitStatus)
	r.Live = !r.State.Final()

	r.Walltime, _ = queue.ParseClock(j.ResourcesUsed.Walltime)
	r.WalltimeLimit, _ = queue.ParseClock(j.ResourceList.Walltime)
	r.MemoryUsedMB, _ = queue.ParseSizeMB(j.ResourcesUsed.Mem)
	r.MemoryLimitMB, _ = queue.ParseSizeMB(j.ResourceList.Mem)

	return r, true
}

// mapState translates Torque state letters.
func mapState(state string, exitStatus string) queue.State {
	switch strings.TrimSpace(state) {
	case "Q", "W", "H", "T", "S":
		return queue.StateQueued
	case "R", "E":
		return queue.StateRunning
	case "C", "F":
		switch code, err := strconv.Atoi(strings.TrimSpace(exitStatus)); {
		case err != nil:
			return queue.StateFromExit(exitStatus)
		case code < 0 || code >= 256:
			// negative codes are server side errors, >= 256 means killed by a signal
			return queue.StateAborted
		default:
			return queue.StateFromExit(exitStatus)
		}
	default:
		return queue.StateUnknown
	}
}

// execNode returns the first host of "dc01.cluster/0+dc01.cluster/1".
func execNode(execHost string) string {
	host := strings.SplitN(execHost, "+", 2)[0]
	host = strings.SplitN(host, "/", 2)[0]

	return strings.SplitN(host, ".", 2)[0]
}

func hostPrefix(p string) string {
	if i := strings.IndexByte(p, ':'); i >= 0 {
		return p[:i+1]
	}

	return ""
}

func epoch(s string) time.Time {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return time.Time{}
	}

	return time.Unix(v, 0)
}

/************************************************************

			pbsnodes -x

************************************************************/

type xmlNodes struct {
	Nodes []xmlNode `xml:"Node"`
}

type xmlNode struct {
	Name   string `xml:"name"`
	State  string `xml:"state"`
	NP     string `xml:"np"`
	Jobs   string `xml:"jobs"`
	Status string `xml:"status"`
}

// nodeJob matches the entries of the jobs list: "0/123.server" or "0-3/123.server".
var nodeJob = regexp.MustCompile(`^(?:[\d,-]+/)?(\d+)\.`)

// ParseNodes parses the XML printed by 'pbsnodes -x'.
func ParseNodes(out []byte) ([]queue.Node, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, nil
	}

	var data xmlNodes
	if err := xml.Unmarshal(out, &data); err != nil {
		return nil, errors.Wrap(err, "pbsnodes decoding error")
	}

	nodes := make([]queue.Node, 0, len(data.Nodes))

	for _, n := range data.Nodes {
		node := queue.Node{
			Name:   strings.SplitN(strings.TrimSpace(n.Name), ".", 2)[0],
			States: strings.Split(strings.TrimSpace(n.State), ","),
		}

		node.CPUs, _ = strconv.Atoi(strings.TrimSpace(n.NP))

		for _, j := range strings.Split(n.Jobs, ",") {
			if m := nodeJob.FindStringSubmatch(strings.TrimSpace(j)); m != nil {
				node.Jobs = append(node.Jobs, m[1])
			}
		}

		node.UsedCPUs = len(node.Jobs)

		for _, kv := range strings.Split(n.Status, ",") {
			key, value, found := strings.Cut(kv, "=")
			if !found {
				continue
			}

			switch key {
			case "physmem":
				node.MemoryMB, _ = queue.ParseSizeMB(value)
			case "loadave":
				node.Load = value
			}
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}
