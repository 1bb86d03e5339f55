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

	"github.com/carv-ics-forth/batchq/compute/queue"
)

// SummaryRow counts the jobs of one user in one queue. Queue rows leave User empty.
type SummaryRow struct {
	User    string
	Queue   string
	Running int
	Queued  int
	Exiting int
}

func (r *SummaryRow) add(rec queue.Record) {
	switch {
	case rec.State == queue.StateRunning && exiting(rec.RawState):
		r.Exiting++
	case rec.State == queue.StateRunning:
		r.Running++
	case rec.State == queue.StateQueued:
		r.Queued++
	}
}

func exiting(raw string) bool {
	switch raw {
	case "E", "COMPLETING", "CG":
		return true
	default:
		return false
	}
}

// Summary is the live view of the batch system for all users.
type Summary struct {
	Users  []SummaryRow
	Queues []SummaryRow
	Total  SummaryRow
}

// Summarize counts the jobs per user and queue. The current user is labeled with a leading "*".
func Summarize(listing queue.Listing, currentUser string) Summary {
	type key struct{ user, queue string }

	users := map[key]*SummaryRow{}
	queues := map[string]*SummaryRow{}

	s := Summary{Total: SummaryRow{Queue: "totals"}}

	for _, rec := range listing.Records {
		user := rec.User
		if user == currentUser && user != "" {
			user = "*" + user
		}

		k := key{user: user, queue: rec.Queue}

		if _, ok := users[k]; !ok {
			users[k] = &SummaryRow{User: user, Queue: rec.Queue}
		}

		if _, ok := queues[rec.Queue]; !ok {
			queues[rec.Queue] = &SummaryRow{Queue: rec.Queue}
		}

		users[k].add(rec)
		queues[rec.Queue].add(rec)
		s.Total.add(rec)
	}

	for _, r := range users {
		s.Users = append(s.Users, *r)
	}

	sort.Slice(s.Users, func(i, j int) bool {
		if s.Users[i].User != s.Users[j].User {
			return s.Users[i].User < s.Users[j].User
		}

		return s.Users[i].Queue < s.Users[j].Queue
	})

	for _, r := range queues {
		s.Queues = append(s.Queues, *r)
	}

	sort.Slice(s.Queues, func(i, j int) bool { return s.Queues[i].Queue < s.Queues[j].Queue })

	return s
}

const (
	summaryRule  = "========================================================="
	summarySep   = "---------------------------------------------------------"
	summaryTotal = "                -----------------------------------------"
	summaryRow   = "%-15s %-10s %-10v %-10v %-10v\n"
)

// WriteSummary prints the per-user rows, the per-queue rows and the totals.
func WriteSummary(w io.Writer, s Summary) error {
	var err error

	printf := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	row := func(r SummaryRow) {
		printf(summaryRow, r.User, r.Queue, r.Running, r.Queued, r.Exiting)
	}

	printf("%s\n", summaryRule)
	printf(summaryRow, "User", "Queue", "Running", "Queued", "Exiting")
	printf("%s\n", summarySep)

	for _, r := range s.Users {
		row(r)
	}

	printf("%s\n", summarySep)

	for _, r := range s.Queues {
		row(r)
	}

	printf("%s\n", summaryTotal)
	row(s.Total)

	return err
}
