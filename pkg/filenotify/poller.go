package filenotify

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

var (
	// errPollerClosed is returned when the poller is closed
	errPollerClosed = errors.New("poller is closed")
	// errNoSuchWatch is returned when trying to remove a watch that doesn't exist
	errNoSuchWatch = errors.New("watch does not exist")
)

// filePoller is used to poll files for changes, especially in cases where fsnotify
// can't be run (e.g. when inotify handles are exhausted)
// filePoller satisfies the FileWatcher interface
type filePoller struct {
	// the duration between polls.
	interval time.Duration
	// watches is the list of files currently being polled, close the associated channel to stop the watch
	watches map[string]struct{}
	// Will be closed when done.
	done chan struct{}
	// events is the channel to listen to for watch events
	events chan fsnotify.Event
	// errors is the channel to listen to for watch errors
	errors chan error
	// mu locks the poller for modification
	mu sync.Mutex
	// closed is used to specify when the poller has already closed
	closed bool
}

// Add adds a filename to the list of watches
// once added the file is polled for changes in a separate goroutine
func (w *filePoller) Add(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errPollerClosed
	}

	info, err := os.Stat(name)
	if err != nil {
		return err
	}

	if w.watches == nil {
		w.watches = make(map[string]struct{})
	}
	if _, exists := w.watches[name]; exists {
		return errors.Errorf("watch exists")
	}
	w.watches[name] = struct{}{}

	go w.watch(name, info)
	return nil
}

// Remove stops and removes watch with the specified name
func (w *filePoller) Remove(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remove(name)
}

func (w *filePoller) remove(name string) error {
	if w.closed {
		return errPollerClosed
	}

	_, exists := w.watches[name]
	if !exists {
		return errNoSuchWatch
	}
	delete(w.watches, name)
	return nil
}

// Events returns the event channel
// This is used for notifications on events about watched files
func (w *filePoller) Events() <-chan fsnotify.Event {
	return w.events
}

// Errors returns the errors channel
// This is used for notifications about errors on watched files
func (w *filePoller) Errors() <-chan error {
	return w.errors
}

// Close closes the poller
// All watches are stopped, removed, and the poller cannot be added to
func (w *filePoller) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	for name := range w.watches {
		w.remove(name)
	}

	return nil
}

// sendEvent publishes the specified event to the events channel
func (w *filePoller) sendEvent(e fsnotify.Event) error {
	select {
	case <-w.done:
		return nil
	case w.events <- e:
	}
	return nil
}

// sendErr publishes the specified error to the errors channel
func (w *filePoller) sendErr(e error) error {
	select {
	case <-w.done:
		return nil
	case w.errors <- e:
	}
	return nil
}

func (w *filePoller) watching(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, exists := w.watches[name]
	return exists && !w.closed
}

// watch watches item for changes until done is closed.
func (w *filePoller) watch(name string, prev os.FileInfo) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-w.done:
			return
		}

		if !w.watching(name) {
			return
		}

		info, err := os.Stat(name)
		if err != nil {
			if os.IsNotExist(err) {
				if prev != nil {
					w.sendEvent(fsnotify.Event{Op: fsnotify.Remove, Name: name})
				}
				prev = nil
				continue
			}

			if err := w.sendErr(err); err != nil {
				return
			}
			continue
		}

		switch {
		case prev == nil:
			w.sendEvent(fsnotify.Event{Op: fsnotify.Create, Name: name})
		case prev.Mode() != info.Mode():
			w.sendEvent(fsnotify.Event{Op: fsnotify.Chmod, Name: name})
		case prev.ModTime() != info.ModTime() || prev.Size() != info.Size():
			w.sendEvent(fsnotify.Event{Op: fsnotify.Write, Name: name})
		}

		prev = info
	}
}
