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
	"time"

	"github.com/carv-ics-forth/batchq/compute/archive"
	"github.com/carv-ics-forth/batchq/compute/status"
	"github.com/spf13/cobra"
)

// DefaultArchiveAge is used when no age is given.
const DefaultArchiveAge = "1w"

func NewArchiveCommand(ctx context.Context, g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive [AGE]",
		Short: "Archive finished jobs",
		Long: `Archive the outputs of finished jobs older than AGE (default: 1 week) into a tarball
under the archive directory, and remove their entries from the submission log.

AGE is either a date (YYYY-MM-DD) or a time delta (2w, 3h or 1d).
Jobs still in the batch system are never archived.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			age := DefaultArchiveAge
			if len(args) == 1 {
				age = args[0]
			}

			now := time.Now()

			cutoff, err := status.ParseCutoff(age, now)
			if err != nil {
				return err
			}

			s, err := g.Open(cmd)
			if err != nil {
				return err
			}

			archiver := archive.New(archive.Options{
				Log:    s.Log,
				Output: s.Output,
				Client: s.Backend.Client,
				User:   s.Env.User,
				Home:   s.Env.Home,
				Logger: DefaultLogger,
				Now:    func() time.Time { return now },
			})

			report, err := archiver.Archive(ctx, cutoff)

			if printErr := printArchiveReport(cmd.OutOrStdout(), report); printErr != nil && err == nil {
				err = printErr
			}

			return err
		},
	}

	return cmd
}

func printArchiveReport(w io.Writer, report archive.Report) error {
	for _, id := range report.Archived {
		if _, err := fmt.Fprintf(w, "Archived job %s\n", id); err != nil {
			return err
		}
	}

	if report.Tarball != "" {
		if _, err := fmt.Fprintf(w, "Outputs saved in %s\n", report.Tarball); err != nil {
			return err
		}
	}

	if report.LogRemoved > 0 {
		if _, err := fmt.Fprintf(w, "Removed %d entries from the submission log\n", report.LogRemoved); err != nil {
			return err
		}
	}

	return nil
}
