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

package path

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Resolve searches for an executable named binary in the directories named by the PATH environment variable
// and returns the binary's path. If the executable cannot be found, the bare name is returned so that
// the failure is reported by the invocation itself, next to the command that needed it.
func Resolve(executableName string) string {
	// find the executable
	path, err := exec.LookPath(executableName)
	if err != nil {
		logrus.Debugf("Executable '%s' is not in PATH", executableName)

		return executableName
	}

	// check that we can access the executable (permissions, etc etc)
	if _, err := os.Stat(path); err != nil {
		logrus.Debugf("Executable '%s' is not accessible: %v", path, err)

		return executableName
	}

	logrus.Debugf("Found executable '%s' -> '%s'", executableName, path)

	return path
}

// ExpandHome replaces a leading "~" with the home directory of the user.
func ExpandHome(path string, home string) string {
	switch {
	case path == "~":
		return home
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(home, path[2:])
	default:
		return path
	}
}
