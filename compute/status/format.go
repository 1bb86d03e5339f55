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
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/pkg/ui"
)

// Format selects what is printed for every job.
type Format string

const (
	// FormatTable prints every known detail.
	FormatTable Format = "table"

	// FormatJobID prints the ids on one line, separated by spaces, for piping into the cancel command.
	FormatJobID Format = "jobid"

	// FormatCmd prints one command per line, for resubmission.
	FormatCmd Format = "cmd"
)

var Formats = []Format{FormatTable, FormatJobID, FormatCmd}

func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}

	return "", compute.MalformedRequest(s, "unknown output format, choose one of table, jobid, cmd")
}

const (
	nameWidth  = 20
	timeLayout = "2006-01-02 15:04:05"
)

var tableHeaders = []string{"Job ID", "Name", "Status", "Exit", "Start Time", "Elapsed/Total Time", "Used Memory", "Command"}

// Write prints the jobs in the given format.
func Write(w io.Writer, format Format, jobs []*Job) error {
	switch format {
	case FormatJobID:
		ids := make([]string, 0, len(jobs))
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}

		_, err := fmt.Fprintln(w, strings.Join(ids, " "))

		return err

	case FormatCmd:
		for _, j := range jobs {
			if _, err := fmt.Fprintln(w, j.Command); err != nil {
				return err
			}
		}

		return nil

	default:
		rows := make([][]string, 0, len(jobs))
		for _, j := range jobs {
			rows = append(rows, TableRow(j))
		}

		return ui.Table(w, tableHeaders, rows)
	}
}

// TableRow formats the columns of a job.
func TableRow(j *Job) []string {
	state := string(j.State)
	if j.Live() && j.Queue != "" {
		state = fmt.Sprintf("%s (%s)", j.State, j.Queue)
	}

	exit := j.ExitStatus
	if exit == "" {
		exit = "-"
	}

	var start string
	if !j.Submitted.IsZero() {
		start = j.Submitted.Local().Format(timeLayout)
	}

	command := j.Command
	if command == "" {
		command = "-"
	}

	return []string{
		j.ID,
		ui.Truncate(j.Name, nameWidth),
		state,
		exit,
		start,
		formatElapsed(j.Walltime, j.WalltimeLimit),
		formatMemory(j.MemoryUsedMB, j.MemoryLimitMB),
		command,
	}
}

func formatElapsed(used, limit time.Duration) string {
	switch {
	case limit > 0:
		return FormatClock(used) + "/" + FormatClock(limit)
	case used > 0:
		return FormatClock(used)
	default:
		return ""
	}
}

func formatMemory(usedMB, limitMB int64) string {
	used := float64(usedMB) / 1024
	limit := float64(limitMB) / 1024

	switch {
	case limitMB > 0:
		return fmt.Sprintf("%.1f/%.1fG (%3d%%)", used, limit, int(used/limit*100))
	case usedMB > 0:
		return fmt.Sprintf("%.1fG", used)
	default:
		return ""
	}
}

// FormatClock prints a duration as HH:MM:SS. Hours are not wrapped into days.
func FormatClock(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute

	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}
