// Package filenotify watches the output directory for job output files.
//
// Events come from fsnotify where the kernel delivers them. Directories on shared
// filesystems (NFS, Lustre, GPFS) only see writes made by the local host, so outputs
// written by compute nodes need the polling watcher instead. Both satisfy FileWatcher.
//
// The polling watcher is adapted from https://github.com/gohugoio/hugo/blob/master/watcher/filenotify, Apache-2.0 License.
package filenotify

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher delivers create/write/remove events for the watched paths.
type FileWatcher interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Add(name string) error
	Remove(name string) error
	Close() error
}

// New returns an event watcher, or a polling watcher when poll is set or inotify
// cannot be initialised (e.g. the per-user watch limit is exhausted).
func New(interval time.Duration, poll bool) FileWatcher {
	if poll {
		return NewPollingWatcher(interval)
	}

	w, err := NewEventWatcher()
	if err != nil {
		return NewPollingWatcher(interval)
	}

	return w
}

// NewPollingWatcher stats every watched path once per interval.
func NewPollingWatcher(interval time.Duration) FileWatcher {
	return &filePoller{
		interval: interval,
		watches:  map[string]chan struct{}{},
		done:     make(chan struct{}),
		events:   make(chan fsnotify.Event),
		errors:   make(chan error),
	}
}

// NewEventWatcher wraps an inotify watcher.
func NewEventWatcher() (FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsNotifyWatcher{Watcher: w}, nil
}
