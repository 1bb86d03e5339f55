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

package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/pkg/errors"
)

// writeTarball creates a gzipped tarball with the given files. Files that cannot be read are
// reported in failed and left out. An error means the tarball is unusable and has been removed.
func writeTarball(tarball string, files []string, arcName func(string) string) (packed []string, failed []error, err error) {
	f, err := os.OpenFile(tarball, os.O_WRONLY|os.O_CREATE|os.O_EXCL, paths.ArchiveFilePermissions)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cannot create tarball")
	}

	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tarball)
		}
	}()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, path := range files {
		if addErr := addFile(tw, path, arcName(path)); addErr != nil {
			if errors.Is(addErr, errWriteTarball) {
				return nil, nil, addErr
			}

			failed = append(failed, compute.ArchiveIOError(path, addErr))

			continue
		}

		packed = append(packed, path)
	}

	if err = tw.Close(); err != nil {
		return nil, nil, errors.Wrap(err, "cannot finish tarball")
	}

	if err = gz.Close(); err != nil {
		return nil, nil, errors.Wrap(err, "cannot finish compression")
	}

	if err = f.Sync(); err != nil {
		return nil, nil, errors.Wrap(err, "cannot sync tarball")
	}

	if err = f.Close(); err != nil {
		return nil, nil, errors.Wrap(err, "cannot close tarball")
	}

	return packed, failed, nil
}

var errWriteTarball = errors.New("tarball write error")

// addFile fails with errWriteTarball when the tarball itself can no longer be written.
func addFile(tw *tar.Writer, path string, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}

	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return errors.Errorf("not a regular file")
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}

	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrap(errWriteTarball, err.Error())
	}

	// the header promised info.Size() bytes
	if _, err := io.CopyN(tw, src, info.Size()); err != nil {
		return errors.Wrap(errWriteTarball, err.Error())
	}

	return nil
}
