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
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

/************************************************************

			Filter by State

************************************************************/

// StateFilter keeps jobs in the selected states. An empty filter keeps everything.
type StateFilter struct {
	states sets.String
}

// NewStateFilter selects the given states. Selecting failed jobs also selects aborted jobs and
// jobs whose state is unknown.
func NewStateFilter(states ...queue.State) StateFilter {
	s := sets.NewString()
	for _, state := range states {
		s.Insert(string(state))
	}

	if s.Has(string(queue.StateFailed)) {
		s.Insert(string(queue.StateAborted), string(queue.StateUnknown))
	}

	return StateFilter{states: s}
}

func (f StateFilter) Empty() bool {
	return f.states.Len() == 0
}

func (f StateFilter) Match(j *Job) bool {
	return f.Empty() || f.states.Has(string(j.State))
}

func (f StateFilter) Apply(jobs []*Job) []*Job {
	if f.Empty() {
		return jobs
	}

	var kept []*Job

	for _, j := range jobs {
		if f.Match(j) {
			kept = append(kept, j)
		}
	}

	return kept
}

/************************************************************

			Limit the Output

************************************************************/

type LimitKind int

const (
	LimitNone LimitKind = iota
	// LimitLines keeps the most recent jobs.
	LimitLines
	// LimitIDFrom keeps jobs with ids from Min on.
	LimitIDFrom
	LimitIDRange
	LimitIDList
	// LimitSince keeps jobs that finished, or were submitted, since the given time.
	LimitSince
	LimitName
)

// MaxLines separates line counts from job ids. Smaller numbers are line counts.
const MaxLines = 10000

var (
	reDate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reJobID = regexp.MustCompile(`^\d+(\.[\w.]+)?(-+(\d+(\.[\w.]+)?)?)?$`)
	reAge   = regexp.MustCompile(`^(\d+)([hdw])$`)
)

type Limit struct {
	Kind LimitKind

	Lines    int
	Min, Max int64
	IDs      sets.Int64
	Since    time.Time
	Name     string
}

// ParseLimit reads a line count (below MaxLines), a job id (jobs from that id on), an id range
// "a-b", an id list "a,b,c", a date "YYYY-MM-DD", an age "5h", "2d" or "3w". Anything else is
// taken as a job name.
func ParseLimit(s string, now time.Time) (Limit, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "":
		return Limit{Kind: LimitNone}, nil

	case isDigits(s):
		if n, err := strconv.Atoi(s); err == nil && n < MaxLines {
			return Limit{Kind: LimitLines, Lines: n}, nil
		}

		return Limit{Kind: LimitIDFrom, Min: idNumber(s)}, nil

	case reDate.MatchString(s):
		at, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			return Limit{}, compute.MalformedRequest(s, "invalid date")
		}

		return Limit{Kind: LimitSince, Since: at}, nil

	case reJobID.MatchString(s):
		from, to, isRange := strings.Cut(s, "-")
		if !isRange || strings.Trim(to, "-") == "" {
			return Limit{Kind: LimitIDFrom, Min: idNumber(from)}, nil
		}

		lo, hi := idNumber(from), idNumber(strings.TrimLeft(to, "-"))
		if hi < 0 {
			return Limit{}, compute.MalformedRequest(s, "invalid job id range")
		}

		if lo > hi {
			lo, hi = hi, lo
		}

		return Limit{Kind: LimitIDRange, Min: lo, Max: hi}, nil

	case strings.Contains(s, ","):
		ids := sets.NewInt64()

		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			n := idNumber(part)
			if n < 0 {
				return Limit{}, compute.MalformedRequest(part, "invalid job id in list")
			}

			ids.Insert(n)
		}

		return Limit{Kind: LimitIDList, IDs: ids}, nil

	case reAge.MatchString(s):
		age, err := ParseAge(s)
		if err != nil {
			return Limit{}, err
		}

		return Limit{Kind: LimitSince, Since: now.Add(-age)}, nil

	default:
		return Limit{Kind: LimitName, Name: s}, nil
	}
}

// Apply keeps the jobs within the limit, in their original order.
func (l Limit) Apply(jobs []*Job) []*Job {
	switch l.Kind {
	case LimitNone:
		return jobs
	case LimitLines:
		if l.Lines >= len(jobs) {
			return jobs
		}

		return jobs[len(jobs)-l.Lines:]
	}

	var kept []*Job

	for _, j := range jobs {
		if l.Match(j) {
			kept = append(kept, j)
		}
	}

	return kept
}

// Match reports whether a single job is within the limit. Line counts match every job.
func (l Limit) Match(j *Job) bool {
	switch l.Kind {
	case LimitIDFrom:
		return j.Number() >= l.Min
	case LimitIDRange:
		n := j.Number()
		return n >= l.Min && n <= l.Max
	case LimitIDList:
		return l.IDs.Has(j.Number())
	case LimitSince:
		ref := j.ReferenceTime()
		return !ref.IsZero() && !ref.Before(l.Since)
	case LimitName:
		return j.Name == l.Name
	default:
		return true
	}
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return s != ""
}

/************************************************************

			Ages and Cut-offs

************************************************************/

// MaxAge bounds the ages accepted by ParseAge.
const MaxAge = 100 * 365 * 24 * time.Hour

// ParseAge reads "<n>h", "<n>d" or "<n>w".
func ParseAge(s string) (time.Duration, error) {
	m := reAge.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, compute.MalformedRequest(s, "age must be a number followed by h (hours), d (days) or w (weeks)")
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, compute.MalformedRequest(s, "invalid age: %v", err)
	}

	unit := map[string]time.Duration{
		"h": time.Hour,
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}[m[2]]

	if n > int64(MaxAge/unit) {
		return 0, compute.MalformedRequest(s, "age must not exceed %d years", int64(MaxAge/(365*24*time.Hour)))
	}

	return time.Duration(n) * unit, nil
}

// ParseCutoff reads an age, counted back from now, or a date.
func ParseCutoff(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)

	if reDate.MatchString(s) {
		at, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			return time.Time{}, compute.MalformedRequest(s, "invalid date")
		}

		return at, nil
	}

	age, err := ParseAge(s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "expected an age or a date (YYYY-MM-DD)")
	}

	return now.Add(-age), nil
}
