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
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Keys of the "==> Key : value" lines written by the job description.
const (
	KeyRunCommand    = "Run command"
	KeyExecutionHost = "Execution host"
	KeyExitStatus    = "Exit status"
	KeyResourcesUsed = "Resources used"
	KeyJobConfig     = "Job config"
)

const detailPrefix = "==>"

// Output is what a job output file tells about the job.
type Output struct {
	Path  string
	JobID string
	Name  string

	Command    string
	Host       string
	ExitStatus string

	// ModTime is the last status change of the file, taken as the finish time of the job.
	ModTime time.Time

	Walltime      time.Duration
	WalltimeLimit time.Duration
	MemoryUsedMB  int64
	MemoryLimitMB int64

	// Fields holds every key found, including the items of the
	// "Resources used" and "Job config" lines.
	Fields map[string]string
}

// Finished reports whether the job wrote its exit status.
func (o Output) Finished() bool {
	return o.ExitStatus != ""
}

// ReadOutput parses the output file of a job.
func ReadOutput(file paths.OutputFile) (Output, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return Output{}, errors.Wrapf(err, "cannot open output '%s'", file.Path)
	}

	defer f.Close()

	out, err := ParseOutput(f)
	if err != nil {
		return Output{}, errors.Wrapf(err, "cannot read output '%s'", file.Path)
	}

	out.Path = file.Path
	out.JobID = file.JobID

	if out.Name == "" {
		out.Name = file.JobName
	}

	var st unix.Stat_t
	if err := unix.Stat(file.Path, &st); err == nil {
		out.ModTime = time.Unix(st.Ctim.Unix())
	} else if info, err := f.Stat(); err == nil {
		out.ModTime = info.ModTime()
	}

	return out, nil
}

// ParseOutput extracts the detail lines. Everything else in the output belongs to the job
// and is ignored.
func ParseOutput(r io.Reader) (Output, error) {
	out := Output{Fields: map[string]string{}}

	br := bufio.NewReader(r)
	continuation := false

	for {
		line, isPrefix, err := br.ReadLine()
		if err == io.EOF {
			break
		}

		if err != nil {
			return Output{}, err
		}

		// only the start of a long line can hold a detail
		if !continuation && strings.HasPrefix(string(line), detailPrefix) {
			parseDetail(&out, string(line))
		}

		continuation = isPrefix
	}

	out.Command = out.Fields[KeyRunCommand]
	out.Host = out.Fields[KeyExecutionHost]
	out.ExitStatus = out.Fields[KeyExitStatus]
	out.Name = strings.Trim(out.Fields["name"], "'")

	out.Walltime, _ = queue.ParseClock(out.Fields["walltime"])
	out.MemoryUsedMB, _ = queue.ParseSizeMB(out.Fields["mem"])

	if h, err := strconv.ParseFloat(out.Fields["rwalltime"], 64); err == nil && h > 0 {
		out.WalltimeLimit = time.Duration(h * float64(time.Hour)).Round(time.Second)
	}

	if gb, err := strconv.ParseFloat(out.Fields["rmem"], 64); err == nil && gb > 0 {
		out.MemoryLimitMB = int64(gb*1024 + 0.5)
	}

	return out, nil
}

func parseDetail(out *Output, line string) {
	key, value, found := strings.Cut(strings.TrimSpace(line[len(detailPrefix):]), ":")
	if !found {
		return
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	switch key {
	case KeyResourcesUsed, KeyJobConfig:
		for _, kv := range strings.Split(value, ",") {
			k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
			if ok {
				out.Fields[k] = v
			}
		}
	default:
		out.Fields[key] = value
	}
}
