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

package paths

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

/************************************************************

			Set Shared Paths for Job Outputs

************************************************************/

const (
	OutputDirectoryPermissions = os.FileMode(0o755)
	LogFilePermissions         = os.FileMode(0o644)
	ArchiveFilePermissions     = os.FileMode(0o600)
)

const (
	// ArchiveDirName is the directory, inside the output directory, that holds the tarballs.
	ArchiveDirName = "archive"

	// ExtensionArchive is appended to every tarball.
	ExtensionArchive = ".tar.gz"
)

var (
	// <name>.o<jobid>, as written by Torque and by the Slurm template.
	reNamedOutput = regexp.MustCompile(`^(?P<name>.+)\.o(?P<jid>\d+)$`)

	// <jobid>.<server>.OU, as written by PBS spool directories.
	reSpoolOutput = regexp.MustCompile(`^(?P<jid>\d+)\.(?P<server>[\w.-]+)\.OU$`)
)

// OutputPath is the directory where jobs write their merged stdout/stderr.
type OutputPath string

func Output(dir string) OutputPath {
	return OutputPath(filepath.Clean(dir))
}

func (p OutputPath) String() string {
	if p == "" {
		panic("output path has not been initialized")
	}

	return string(p)
}

// ArchiveDir pbs-output/archive
func (p OutputPath) ArchiveDir() string {
	return filepath.Join(p.String(), ArchiveDirName)
}

// ArchiveFile pbs-output/archive/<date>_<suffix>.tar.gz
func (p OutputPath) ArchiveFile(at time.Time, suffix string) string {
	return filepath.Join(p.ArchiveDir(), at.Format("2006-01-02")+"_"+suffix+ExtensionArchive)
}

// JobOutput pbs-output/<name>.o<jobid>
func (p OutputPath) JobOutput(name string, jobID string) string {
	return filepath.Join(p.String(), name+".o"+jobID)
}

// EnsureExists creates the output directory if it is missing.
func (p OutputPath) EnsureExists() error {
	if err := os.MkdirAll(p.String(), OutputDirectoryPermissions); err != nil {
		return errors.Wrapf(err, "cannot create dir '%s'", p)
	}

	return nil
}

// OutputFile is a job output found in the output directory.
type OutputFile struct {
	Path    string
	JobID   string
	JobName string
}

type WalkOutputFunc func(file OutputFile, info os.FileInfo) error

// WalkOutputFiles calls f for every job output directly under the output directory.
// Subdirectories, including the archive, are not visited. Files that do not follow
// a known naming scheme are ignored. A missing output directory has no outputs.
func (p OutputPath) WalkOutputFiles(f WalkOutputFunc) error {
	maxDepth := strings.Count(p.String(), string(os.PathSeparator)) + 1 // expect path pbs-output/file

	err := filepath.WalkDir(p.String(), func(path string, entry os.DirEntry, err error) error {
		// check for traversing errors
		if err != nil {
			if path == p.String() && os.IsNotExist(err) {
				return filepath.SkipDir
			}

			return errors.Wrapf(err, "output traversal error")
		}

		if entry.IsDir() {
			if path == p.String() {
				return nil
			}

			return filepath.SkipDir
		}

		if strings.Count(path, string(os.PathSeparator)) != maxDepth {
			return nil
		}

		file, invalid := p.ParseAbsPath(path)
		if invalid {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			// removed while walking
			return nil
		}

		return f(file, info)
	})

	if errors.Is(err, filepath.SkipDir) {
		return nil
	}

	return err
}

// ParseAbsPath parses the path according to the expected output naming, and returns
// the corresponding fields.
func (p OutputPath) ParseAbsPath(absPath string) (file OutputFile, invalid bool) {
	// ignore non absolute paths
	if !filepath.IsAbs(absPath) {
		return OutputFile{}, true
	}

	// only direct children of the output directory
	if filepath.Dir(absPath) != p.String() {
		return OutputFile{}, true
	}

	base := filepath.Base(absPath)

	for _, re := range []*regexp.Regexp{reNamedOutput, reSpoolOutput} {
		match := re.FindStringSubmatch(base)
		if len(match) == 0 {
			continue
		}

		file.Path = absPath

		// parse fields
		for i, name := range re.SubexpNames() {
			if i > 0 && i <= len(match) {
				switch name {
				case "name":
					file.JobName = match[i]
				case "jid":
					file.JobID = match[i]
				}
			}
		}

		return file, false
	}

	return OutputFile{}, true
}
