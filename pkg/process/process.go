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

// Package process runs external programs and collects their output.
package process

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned when a program does not finish within the configured timeout.
var ErrTimeout = errors.New("command timed out")

// ansiEscape matches terminal color sequences that some batch tools add to their output.
var ansiEscape = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)

// execCommand is replaced by tests.
var execCommand = exec.CommandContext

// Runner executes external programs. The queue adapters receive a Runner, so tests can
// replace the batch system with canned responses.
type Runner interface {
	Run(ctx context.Context, stdin []byte, program string, args ...string) ([]byte, error)
}

// Host runs programs on the local machine.
type Host struct {
	// Dir is the working directory of the program. Empty means the current directory.
	Dir string

	// Timeout bounds every invocation. Zero means no timeout.
	Timeout time.Duration
}

// Run executes the program, feeds stdin to it (if any), and returns its standard output with
// terminal escape sequences removed. A non-zero exit code, or anything written to stderr by a
// failed program, is reported through the returned error.
func (h Host) Run(ctx context.Context, stdin []byte, program string, args ...string) ([]byte, error) {
	if h.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer

	cmd := execCommand(ctx, program, args...)
	cmd.Dir = h.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return stdout.Bytes(), errors.Wrapf(ErrTimeout, "'%s' did not finish within %s", program, h.Timeout)
		}

		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), errors.Wrapf(err, "'%s' failed: %s", program, msg)
		}

		return stdout.Bytes(), errors.Wrapf(err, "'%s' failed", program)
	}

	return StripANSI(stdout.Bytes()), nil
}

// Execute runs the program in the current directory, without stdin or timeout.
func Execute(program string, args ...string) ([]byte, error) {
	return Host{}.Run(context.Background(), nil, program, args...)
}

// ExecuteInDir runs the program in the given directory.
func ExecuteInDir(dir string, program string, args ...string) ([]byte, error) {
	return Host{Dir: dir}.Run(context.Background(), nil, program, args...)
}

// StripANSI removes terminal escape sequences.
func StripANSI(out []byte) []byte {
	return ansiEscape.ReplaceAll(out, nil)
}
