// Package watch reports changes below a set of source directories. Creating a
// file can change which candidate wins resolution, so directory creations are
// reported as well as file edits.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/uniplat/mpresolve/internal/logger"
)

const DefaultDebounce = 100 * time.Millisecond

type Watcher struct {
	watcher  *fsnotify.Watcher
	log      logger.Log
	debounce time.Duration

	mutex sync.Mutex
	dirs  map[string]bool
}

// SkipDir reports whether a directory is never watched. Dependencies and
// hidden directories (".git", ".cache") change often and never affect the
// platform files of the project itself.
func SkipDir(name string) bool {
	return name == "node_modules" || (len(name) > 1 && strings.HasPrefix(name, "."))
}

func New(roots []string, log logger.Log, debounce time.Duration) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		watcher:  watcher,
		log:      log,
		debounce: debounce,
		dirs:     make(map[string]bool),
	}
	if err := w.Add(roots); err != nil {
		watcher.Close()
		return nil, err
	}
	return w, nil
}

// Add watches more directory trees. Trees already watched are skipped.
func (w *Watcher) Add(roots []string) error {
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}

			// Directories can disappear while walking
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && SkipDir(entry.Name()) {
			return filepath.SkipDir
		}

		w.mutex.Lock()
		defer w.mutex.Unlock()
		if w.dirs[path] {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.dirs[path] = true
		return nil
	})
}

// Dirs returns the number of directories being watched
func (w *Watcher) Dirs() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return len(w.dirs)
}

// Relevant reports whether an event can affect resolution. Attribute changes
// never do.
func Relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}

func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if !Relevant(event) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if SkipDir(info.Name()) {
				return false
			}
			if err := w.addTree(event.Name); err != nil {
				w.log.AddWarning(err.Error())
			}
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.mutex.Lock()
		delete(w.dirs, event.Name)
		w.mutex.Unlock()
	}
	return true
}

// Run calls onChange with the paths that changed, batching events that arrive
// within the debounce interval of each other. It returns when the context is
// done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func(paths []string)) error {
	var pending []string
	seen := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.handleEvent(event) {
				continue
			}
			if !seen[event.Name] {
				seen[event.Name] = true
				pending = append(pending, event.Name)
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.AddWarning(fmt.Sprintf("Watch error: %s", err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := pending
			pending = nil
			seen = make(map[string]bool)
			onChange(paths)
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
