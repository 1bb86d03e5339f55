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

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/compute/status"
	"github.com/carv-ics-forth/batchq/pkg/ui"
	"github.com/carv-ics-forth/batchq/pkg/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RunSummary prints the running and queued jobs of all users.
func RunSummary(ctx context.Context, w io.Writer, client queue.Client, user string) error {
	listing, err := client.Jobs(ctx)
	if err != nil {
		return compute.ExternalCommandError("jobs", err)
	}

	if listing.Skipped > 0 {
		logrus.Warnf("Skipped %d jobs that could not be parsed", listing.Skipped)
	}

	return status.WriteSummary(w, status.Summarize(listing, user))
}

// NewVersionCommand creates the version subcommand.
func NewVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version of the program",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Logo(name, true))
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
