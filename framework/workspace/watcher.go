package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeType classifies a filesystem event.
type ChangeType int

const (
	ChangeUpdated ChangeType = iota
	ChangeDeleted
	ChangeDirectory
)

// Change is a filesystem event relevant to the workspace.
type Change struct {
	Type ChangeType
	Path string
	URI  string
}

// Watcher re-tracks schema files changed on disk. Tracking ignores files
// open in the editor, whose content the editor owns.
type Watcher struct {
	root    string
	opts    Options
	tracker Tracker
	logger  *slog.Logger
	fs      *fsnotify.Watcher
}

// NewWatcher prepares a watcher over root. Call Run to start it.
func NewWatcher(root string, opts Options, tracker Tracker, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		root:    root,
		opts:    opts.normalized(),
		tracker: tracker,
		logger:  logger,
		fs:      fw,
	}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and its subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.opts.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if change := w.handleEvent(event); change != nil {
				w.apply(ctx, *change)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "root", w.root, "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// handleEvent maps an fsnotify event to a workspace change. Events for
// unmatched files, hidden paths and attribute changes yield nil.
func (w *Watcher) handleEvent(event fsnotify.Event) *Change {
	path := event.Name
	base := filepath.Base(path)
	if len(base) > 0 && base[0] == '.' {
		return nil
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if !w.opts.Matches(path) {
			return nil
		}
		return &Change{Type: ChangeDeleted, Path: path, URI: PathToURI(path)}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) && !w.opts.skipDir(base) {
				return &Change{Type: ChangeDirectory, Path: path}
			}
			return nil
		}
		if !w.opts.Matches(path) {
			return nil
		}
		return &Change{Type: ChangeUpdated, Path: path, URI: PathToURI(path)}
	}
	return nil
}

func (w *Watcher) apply(ctx context.Context, c Change) {
	switch c.Type {
	case ChangeDeleted:
		w.logger.Debug("schema file removed", "path", c.Path)
		w.tracker.UntrackDocument(ctx, c.URI)
	case ChangeUpdated:
		data, err := os.ReadFile(c.Path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn("read schema file", "path", c.Path, "error", err)
			}
			return
		}
		w.logger.Debug("schema file changed", "path", c.Path)
		w.tracker.TrackDocument(ctx, c.URI, string(data))
	case ChangeDirectory:
		if err := w.addTree(c.Path); err != nil {
			w.logger.Warn("watch directory", "path", c.Path, "error", err)
			return
		}
		files, err := Scan(ctx, c.Path, w.opts)
		if err != nil {
			return
		}
		for _, f := range files {
			w.tracker.TrackDocument(ctx, f.URI, f.Text)
		}
	}
}
