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
	"context"
	"os"
	"strings"

	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/carv-ics-forth/batchq/compute/queue"
	"github.com/carv-ics-forth/batchq/pkg/filenotify"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// WaitForOutputs blocks until every job has written its exit status to its output file.
// The watcher must not be watching anything yet. It is left open.
func WaitForOutputs(ctx context.Context, watcher filenotify.FileWatcher, output paths.OutputPath, jobIDs []string) error {
	pending := sets.NewString()
	for _, id := range jobIDs {
		pending.Insert(queue.ShortID(id))
	}

	check := func(file paths.OutputFile) {
		id := queue.ShortID(file.JobID)
		if !pending.Has(id) {
			return
		}

		out, err := ReadOutput(file)
		if err == nil && out.Finished() {
			pending.Delete(id)
		}
	}

	if err := output.EnsureExists(); err != nil {
		return err
	}

	if err := watcher.Add(output.String()); err != nil {
		return errors.Wrapf(err, "cannot watch '%s'", output)
	}

	defer watcher.Remove(output.String())

	/*-- outputs written before the watch started --*/
	err := output.WalkOutputFiles(func(file paths.OutputFile, _ os.FileInfo) error {
		check(file)
		return nil
	})
	if err != nil {
		return err
	}

	for pending.Len() > 0 {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "no output yet for %s", strings.Join(pending.List(), " "))

		case event, ok := <-watcher.Events():
			if !ok {
				return errors.New("file watcher closed")
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			if file, invalid := output.ParseAbsPath(event.Name); !invalid {
				check(file)
			}

		case err, ok := <-watcher.Errors():
			if !ok {
				return errors.New("file watcher closed")
			}

			return errors.Wrap(err, "file watcher error")
		}
	}

	return nil
}
