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

package joblog

import (
	"os"
	"path/filepath"

	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// lock takes an exclusive advisory lock. It is released by unlock, or when the file is closed.
func lock(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// replaceFile writes content next to path and renames it over path.
func replaceFile(path string, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "cannot create temporary file for '%s'", path)
	}

	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()

		return errors.Wrapf(err, "cannot write '%s'", tmp.Name())
	}

	if err := tmp.Chmod(paths.LogFilePermissions); err != nil {
		tmp.Close()

		return errors.Wrapf(err, "cannot chmod '%s'", tmp.Name())
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()

		return errors.Wrapf(err, "cannot sync '%s'", tmp.Name())
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "cannot close '%s'", tmp.Name())
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "cannot replace '%s'", path)
	}

	return nil
}
