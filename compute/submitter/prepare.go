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

package submitter

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/pkg/process"
	"github.com/pkg/errors"
)

// AnyNode leaves node selection to the batch system.
const AnyNode = "1"

var obsoleteSyntax = regexp.MustCompile(`^\d`)

// CheckObsoleteSyntax rejects commands that start with a number. Older versions of submitjob
// took the walltime and memory as the first positional arguments.
func CheckObsoleteSyntax(words []string) error {
	if len(words) > 0 && obsoleteSyntax.MatchString(words[0]) {
		return compute.MalformedRequest(words[0],
			"commands cannot start with a number, use -w and -m to set walltime and memory")
	}

	return nil
}

// CondaEnvironmentExists asks conda for the list of environments.
func CondaEnvironmentExists(ctx context.Context, runner process.Runner, env string) (bool, error) {
	out, err := runner.Run(ctx, nil, "conda", "env", "list")
	if err != nil {
		return false, compute.ExternalCommandError("conda env list", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if fields := strings.Fields(line); fields[0] == env {
			return true, nil
		}
	}

	return false, errors.Wrap(scanner.Err(), "cannot read conda output")
}

// ResolveNode expands a node name prefix to the full name of exactly one node.
// The empty name and AnyNode are returned unchanged.
func ResolveNode(ctx context.Context, client queue.Client, prefix string) (string, error) {
	if prefix == "" || prefix == AnyNode {
		return prefix, nil
	}

	nodes, err := client.Nodes(ctx)
	if err != nil {
		return "", compute.ExternalCommandError("nodes", err)
	}

	var matches []string

	for _, n := range nodes {
		if n.Name == prefix {
			return n.Name, nil
		}

		if strings.HasPrefix(n.Name, prefix) {
			matches = append(matches, n.Name)
		}
	}

	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", compute.MalformedRequest(prefix, "no such node")
	case 1:
		return matches[0], nil
	default:
		return "", compute.MalformedRequest(prefix, "ambiguous node name, matches %s", strings.Join(matches, ", "))
	}
}
