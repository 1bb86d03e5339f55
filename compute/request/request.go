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

// Package request turns command-line input into validated job requests.
package request

import (
	"bufio"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/carv-ics-forth/batchq/compute"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// DefaultJobName is used when nothing usable can be derived from the command.
const DefaultJobName = "job"

// ArgsPlaceholder marks where batched arguments are inserted into a command.
const ArgsPlaceholder = "{}"

// Request is one job to be submitted.
type Request struct {
	Command   string
	Resources Resources

	// Node pins the job to a host. Empty means any node.
	Node string

	WorkDir string

	// Email enables notifications on abort and end.
	Email string

	// JobName overrides the name derived from the command.
	JobName string

	CondaEnv     string
	CondaProfile string
}

// Validate checks the invariants of a request before it is rendered.
func (r Request) Validate() error {
	var merr *multierror.Error

	if strings.TrimSpace(r.Command) == "" {
		merr = multierror.Append(merr, compute.MalformedRequest("", "missing command to submit"))
	}

	if err := r.Resources.Validate(); err != nil {
		merr = multierror.Append(merr, err)
	}

	if r.CondaEnv != "" && r.CondaProfile == "" {
		merr = multierror.Append(merr, compute.MalformedRequest(r.CondaEnv, "conda environment needs a conda profile"))
	}

	return merr.ErrorOrNil()
}

// Name returns the job name, deriving one from the command if none was given.
func (r Request) Name() string {
	if r.JobName != "" {
		return r.JobName
	}

	return JobNameFor(r.Command)
}

var leadingDigits = regexp.MustCompile(`^\d+`)

// JobNameFor derives a job name from the first word of the command: the path is removed,
// ampersands are removed, and leading digits are stripped, since qsub rejects names that
// start with a digit.
func JobNameFor(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return DefaultJobName
	}

	name := filepath.Base(fields[0])
	name = strings.ReplaceAll(name, "&", "")
	name = leadingDigits.ReplaceAllString(name, "")

	if name == "" || name == "." || name == string(filepath.Separator) {
		return DefaultJobName
	}

	return name
}

/************************************************************

			Command Line Assembly

************************************************************/

var (
	startsWithQuote = regexp.MustCompile(`^('|")`)
	shellSpecial    = regexp.MustCompile(`[${[\]!} ]`)
)

// aliases expand to common tab-separated invocations.
var aliases = map[string]string{
	"awkt":  `awk -F '\t' -v OFS='\t'`,
	"sortt": `sort -t $'\t'`,
}

// QuoteWord protects a word of the command line so that the job shell sees it the same way
// the user typed it.
func QuoteWord(word string) string {
	switch {
	case strings.Contains(word, "'") && !startsWithQuote.MatchString(word):
		return `"` + word + `"`
	case shellSpecial.MatchString(word) && !strings.Contains(word, "'"):
		return "'" + word + "'"
	}

	if alias, ok := aliases[word]; ok {
		return alias
	}

	return word
}

// JoinCommand turns positional arguments into a single command line.
func JoinCommand(words []string) string {
	quoted := make([]string, 0, len(words))

	for _, w := range words {
		quoted = append(quoted, QuoteWord(w))
	}

	return strings.Join(quoted, " ")
}

// Line is a command read from a batch file.
type Line struct {
	Number int
	Text   string
}

// ReadCommands reads one command per line. Lines are trimmed, and blank lines are skipped.
// Commands in a file are taken as-is, without quoting.
func ReadCommands(r io.Reader) ([]Line, error) {
	var lines []Line

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		lines = append(lines, Line{Number: n, Text: text})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "cannot read commands")
	}

	return lines, nil
}

// ReadArgs reads one argument per line, trimmed. Blank lines are skipped.
func ReadArgs(r io.Reader) ([]string, error) {
	lines, err := ReadCommands(r)
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(lines))
	for _, l := range lines {
		args = append(args, l.Text)
	}

	return args, nil
}

// ExpandArgs creates one command per batch of batchSize arguments. Each batch replaces the
// placeholder "{}" in words, or is appended when there is no placeholder.
func ExpandArgs(words []string, args []string, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		return nil, compute.MalformedRequest("", "batch size must be positive, got %d", batchSize)
	}

	if len(words) == 0 {
		return nil, compute.MalformedRequest("", "missing command to expand")
	}

	idx := -1

	for i, w := range words {
		if w == ArgsPlaceholder {
			idx = i
			break
		}
	}

	if idx < 0 {
		words = append(append([]string{}, words...), ArgsPlaceholder)
		idx = len(words) - 1
	}

	head := JoinCommand(words[:idx])
	tail := JoinCommand(words[idx+1:])

	var commands []string

	for start := 0; start < len(args); start += batchSize {
		end := start + batchSize
		if end > len(args) {
			end = len(args)
		}

		parts := make([]string, 0, 3)
		if head != "" {
			parts = append(parts, head)
		}

		parts = append(parts, shellescape.QuoteCommand(args[start:end]))

		if tail != "" {
			parts = append(parts, tail)
		}

		commands = append(commands, strings.Join(parts, " "))
	}

	return commands, nil
}
