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
	"io"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/compute/status"
	"github.com/spf13/cobra"
)

type NodesOpts struct {
	States []string
	Owners bool
}

func NewNodesCommand(ctx context.Context, g *Globals) *cobra.Command {
	var o NodesOpts

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Show the load of the cluster nodes",
		Long: `Show the cores and memory in use on every node. Offline nodes are listed last.

Jobs that a node runs but the batch system does not list are shown as ORPHANS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.Open(cmd)
			if err != nil {
				return err
			}

			return runNodes(ctx, cmd.OutOrStdout(), s.Backend.Client, o)
		},
	}

	cmd.Flags().StringSliceVarP(&o.States, "filter-states", "s", nil, "display only nodes in all of these states (comma separated)")
	cmd.Flags().BoolVarP(&o.Owners, "show-job-owners", "o", false, "list the jobs running on every node")

	return cmd
}

func runNodes(ctx context.Context, w io.Writer, client queue.Client, o NodesOpts) error {
	nodes, err := client.Nodes(ctx)
	if err != nil {
		return compute.ExternalCommandError("nodes", err)
	}

	listing, err := client.Jobs(ctx)
	if err != nil {
		return compute.ExternalCommandError("jobs", err)
	}

	return status.WriteNodes(w, status.BuildNodes(nodes, listing, o.States), o.Owners)
}
