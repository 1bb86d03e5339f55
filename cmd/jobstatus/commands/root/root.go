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

package root

import (
	"context"

	"github.com/carv-ics-forth/batchq/cmd/jobstatus/commands"
	"github.com/spf13/cobra"
)

// NewCommand creates the jobstatus command. Without a subcommand, it prints a summary of the
// jobs of all users.
func NewCommand(ctx context.Context, name string) *cobra.Command {
	var g commands.Globals

	cmd := &cobra.Command{
		Use:           name,
		Short:         name + " checks the status of jobs",
		Long:          name + ` checks the status of jobs. Without a subcommand it prints a summary of the jobs of all users.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.Open(cmd)
			if err != nil {
				return err
			}

			return commands.RunSummary(ctx, cmd.OutOrStdout(), s.Backend.Client, s.Env.User)
		},
	}

	commands.InstallGlobalFlags(cmd.PersistentFlags(), &g)

	cmd.AddCommand(
		commands.NewDetailsCommand(ctx, &g),
		commands.NewArchiveCommand(ctx, &g),
		commands.NewNodesCommand(ctx, &g),
		commands.NewWaitCommand(ctx, &g),
		commands.NewVersionCommand(name),
	)

	return cmd
}
