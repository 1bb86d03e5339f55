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

// Package joblog keeps the per-user record of submitted jobs.
//
// Every line is "[<timestamp>]\t<job id>\t<quoted command>". Lines are only ever appended
// by submitjob. The archiver is the only writer that removes lines.
package joblog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// Entry is one submitted job.
type Entry struct {
	Time    time.Time
	JobID   string
	Command string

	// Line is the raw line, without the trailing newline.
	Line string
}

// FormatLine encodes the entry, including the trailing newline.
func FormatLine(at time.Time, jobID string, command string) string {
	return fmt.Sprintf("[%s]\t%s\t%s\n", at.Format(time.RFC3339Nano), jobID, strconv.Quote(command))
}

// legacyLayout is the Python isoformat() of older logs. Fractional seconds are optional when parsing.
const legacyLayout = "2006-01-02T15:04:05"

// ParseLine decodes a line written by FormatLine, or by older versions of submitjob.
func ParseLine(line string) (Entry, error) {
	raw := strings.TrimRight(line, "\r\n")

	if !strings.HasPrefix(raw, "[") {
		return Entry{}, errors.New("missing timestamp")
	}

	end := strings.IndexByte(raw, ']')
	if end < 0 {
		return Entry{}, errors.New("unterminated timestamp")
	}

	at, legacy, err := parseTimestamp(raw[1:end])
	if err != nil {
		return Entry{}, err
	}

	rest := strings.TrimLeft(raw[end+1:], " \t")

	jobID, command, found := strings.Cut(rest, "\t")
	if !found {
		jobID, command, found = strings.Cut(rest, " ")
	}

	jobID = strings.TrimSpace(jobID)
	if !found || jobID == "" {
		return Entry{}, errors.New("missing job id or command")
	}

	return Entry{
		Time:    at,
		JobID:   jobID,
		Command: unquote(strings.TrimSpace(command), legacy),
		Line:    raw,
	}, nil
}

func parseTimestamp(s string) (at time.Time, legacy bool, err error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, false, nil
	}

	t, err := time.ParseInLocation(legacyLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false, errors.Errorf("invalid timestamp '%s'", s)
	}

	return t, true, nil
}

// unquote decodes Go-quoted commands. Older logs wrap the command in double quotes without
// escaping, so those are only stripped.
func unquote(s string, legacy bool) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}

	if !legacy {
		if v, err := strconv.Unquote(s); err == nil {
			return v
		}
	}

	return s[1 : len(s)-1]
}

/************************************************************

			Submission Log File

************************************************************/

// Log is the submission log at Path.
type Log struct {
	Path   string
	Logger logr.Logger
}

func New(path string) *Log {
	return &Log{
		Path:   path,
		Logger: compute.DefaultLogger.WithValues("log", path),
	}
}

// Append adds one line. The file is created if it does not exist.
func (l *Log) Append(at time.Time, jobID string, command string) error {
	if jobID == "" || strings.ContainsAny(jobID, " \t\r\n") {
		return compute.LogIOError(jobID, errors.New("job id is empty or contains whitespace"))
	}

	line := FormatLine(at, jobID, command)

	f, err := l.openLocked(os.O_WRONLY | os.O_APPEND | os.O_CREATE)
	if err != nil {
		return compute.LogIOError(jobID, err)
	}

	defer closeLocked(f)

	// a single write keeps the line intact for readers that do not lock
	if _, err := f.WriteString(line); err != nil {
		return compute.LogIOError(jobID, errors.Wrapf(err, "cannot append to '%s'", l.Path))
	}

	return nil
}

// openLocked opens the log and takes the exclusive lock. If the file was replaced while
// waiting for the lock, the new file is opened instead.
func (l *Log) openLocked(flag int) (*os.File, error) {
	for {
		f, err := os.OpenFile(l.Path, flag, paths.LogFilePermissions)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open '%s'", l.Path)
		}

		if err := lock(f); err != nil {
			f.Close()

			return nil, errors.Wrapf(err, "cannot lock '%s'", l.Path)
		}

		opened, errOpened := f.Stat()
		current, errCurrent := os.Stat(l.Path)

		if errOpened == nil && errCurrent == nil && os.SameFile(opened, current) {
			return f, nil
		}

		closeLocked(f)

		if errCurrent != nil && !os.IsNotExist(errCurrent) {
			return nil, errors.Wrapf(errCurrent, "cannot stat '%s'", l.Path)
		}
	}
}

func closeLocked(f *os.File) {
	_ = unlock(f)
	_ = f.Close()
}

/************************************************************

			Read the Submission Log

************************************************************/

// MaxLineSize bounds the lines the Reader parses. Longer lines are skipped as malformed.
const MaxLineSize = 1024 * 1024

// readLine returns the next line without its terminator. A line longer than MaxLineSize is
// consumed whole but truncated, and long is set.
func readLine(br *bufio.Reader) (line []byte, long bool, err error) {
	size := 0

	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && size > 0 {
				return line, size > MaxLineSize, nil
			}

			return nil, false, err
		}

		if room := MaxLineSize - len(line); room > 0 {
			line = append(line, chunk[:min(room, len(chunk))]...)
		}

		size += len(chunk)

		if !isPrefix {
			return line, size > MaxLineSize, nil
		}
	}
}

// Reader iterates over the entries in file order.
type Reader struct {
	file   *os.File
	br     *bufio.Reader
	logger logr.Logger

	entry   Entry
	lineNo  int
	skipped int
	err     error
}

// Open returns a reader positioned before the first entry. A missing log has no entries.
func (l *Log) Open() (*Reader, error) {
	r := &Reader{logger: l.Logger}

	f, err := os.Open(l.Path)
	switch {
	case os.IsNotExist(err):
		return r, nil
	case err != nil:
		return nil, compute.LogIOError(l.Path, err)
	}

	r.file = f
	r.br = bufio.NewReader(f)

	return r, nil
}

// Next advances to the next well-formed entry. Malformed lines are skipped with a warning.
func (r *Reader) Next() bool {
	if r.br == nil || r.err != nil {
		return false
	}

	for {
		raw, long, err := readLine(r.br)
		if err == io.EOF {
			return false
		}

		if err != nil {
			r.err = compute.LogIOError(r.file.Name(), err)

			return false
		}

		r.lineNo++

		if long {
			r.skipped++
			r.logger.Info("WARNING: skip over-long log line", "line", r.lineNo, "limit", MaxLineSize)

			continue
		}

		line := string(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := ParseLine(line)
		if err != nil {
			r.skipped++
			r.logger.Info("WARNING: skip malformed log line", "line", r.lineNo, "err", err.Error())

			continue
		}

		r.entry = entry

		return true
	}
}

// Entry returns the entry read by the last call to Next.
func (r *Reader) Entry() Entry {
	return r.entry
}

// Err returns the read error that stopped the iteration, if any.
func (r *Reader) Err() error {
	return r.err
}

// Skipped counts the malformed lines seen so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}

	return r.file.Close()
}

// ReadAll returns all entries and the number of malformed lines.
func (l *Log) ReadAll() ([]Entry, int, error) {
	r, err := l.Open()
	if err != nil {
		return nil, 0, err
	}

	defer r.Close()

	var entries []Entry

	for r.Next() {
		entries = append(entries, r.Entry())
	}

	return entries, r.Skipped(), r.Err()
}

/************************************************************

			Rewrite the Submission Log

************************************************************/

// Rewrite keeps the entries for which keep returns true and removes the rest. Malformed lines
// are kept. The new content replaces the log atomically, while holding the lock, so that
// concurrent appends are not lost. If nothing is removed, the file is not touched.
func (l *Log) Rewrite(keep func(Entry) bool) (removed int, err error) {
	if _, err := os.Stat(l.Path); os.IsNotExist(err) {
		return 0, nil
	}

	f, err := l.openLocked(os.O_RDWR)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return 0, nil
		}

		return 0, compute.LogIOError(l.Path, err)
	}

	defer closeLocked(f)

	var kept strings.Builder

	br := bufio.NewReader(f)

	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return 0, compute.LogIOError(l.Path, err)
		}

		if trimmed := strings.TrimRight(line, "\r\n"); strings.TrimSpace(trimmed) != "" {
			if entry, perr := ParseLine(trimmed); perr == nil && !keep(entry) {
				removed++
			} else {
				kept.WriteString(trimmed)
				kept.WriteByte('\n')
			}
		}

		if err == io.EOF {
			break
		}
	}

	if removed == 0 {
		return 0, nil
	}

	if err := replaceFile(l.Path, kept.String()); err != nil {
		return 0, compute.LogIOError(l.Path, err)
	}

	l.Logger.V(1).Info("Submission log rewritten", "removed", removed)

	return removed, nil
}
