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

package compute

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Select with errors.Is(err, compute.ErrX).
var (
	// ErrMalformedRequest is a missing command or an unparsable resource value.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrTemplateRender is an unresolved placeholder in the job description.
	ErrTemplateRender = errors.New("template render error")

	// ErrExternalCommand is a failed batch-system command, or output that cannot be parsed.
	ErrExternalCommand = errors.New("external command error")

	// ErrLogIO is a submission log that cannot be written or read.
	ErrLogIO = errors.New("submission log error")

	// ErrArchiveIO is an output file that cannot be archived or deleted.
	ErrArchiveIO = errors.New("archive error")
)

// Error ties a failure to the item (command line, job, file) that caused it.
type Error struct {
	Kind error
	Item string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Item != "" && e.Err != nil:
		return fmt.Sprintf("%s: '%s': %v", e.Kind, e.Item, e.Err)
	case e.Item != "":
		return fmt.Sprintf("%s: '%s'", e.Kind, e.Item)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, item string, err error) error {
	return &Error{Kind: kind, Item: item, Err: err}
}

func MalformedRequest(item string, format string, args ...any) error {
	return newError(ErrMalformedRequest, item, errors.Errorf(format, args...))
}

func TemplateRenderError(err error, format string, args ...any) error {
	return newError(ErrTemplateRender, "", errors.Wrapf(err, format, args...))
}

func ExternalCommandError(item string, err error) error {
	return newError(ErrExternalCommand, item, err)
}

func LogIOError(item string, err error) error {
	return newError(ErrLogIO, item, err)
}

func ArchiveIOError(item string, err error) error {
	return newError(ErrArchiveIO, item, err)
}

// ItemOf returns the item recorded in err, if any.
func ItemOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Item
	}

	return ""
}
