// Package workspace discovers schema files on disk and keeps the scheduler's
// tracked documents in step with them.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultInclude matches schema files.
var DefaultInclude = []string{"*.sd"}

// DefaultExclude names directories that are never scanned.
var DefaultExclude = []string{".git", "node_modules", "target", "vendor"}

// Options controls which files a scan picks up.
type Options struct {
	// Include holds base-name glob patterns; empty means DefaultInclude.
	Include []string
	// Exclude holds directory names to skip; hidden directories are always
	// skipped.
	Exclude []string
	// Workers bounds parallel file reads; zero means GOMAXPROCS.
	Workers int
}

func (o Options) normalized() Options {
	if len(o.Include) == 0 {
		o.Include = DefaultInclude
	}
	if o.Exclude == nil {
		o.Exclude = DefaultExclude
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Matches reports whether the base name of path matches an include pattern.
func (o Options) Matches(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range o.normalized().Include {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (o Options) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	for _, ex := range o.Exclude {
		if name == ex {
			return true
		}
	}
	return false
}

// File is a schema file read from disk.
type File struct {
	Path string
	URI  string
	Text string
}

// Scan walks root and reads every matching file in parallel. Files are
// returned sorted by path. Unreadable files are skipped; only a failure to
// walk root is an error.
func Scan(ctx context.Context, root string, opts Options) ([]File, error) {
	opts = opts.normalized()
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && opts.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if opts.Matches(path) {
			paths = append(paths, path)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(paths)

	files := make([]File, len(paths))
	read := make([]bool, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			files[i] = File{Path: path, URI: PathToURI(path), Text: string(data)}
			read[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	out := files[:0]
	for i, f := range files {
		if read[i] {
			out = append(out, f)
		}
	}
	return out, nil
}

// Tracker receives on-disk documents. *document.Scheduler satisfies it.
type Tracker interface {
	TrackDocument(ctx context.Context, uri, text string)
	UntrackDocument(ctx context.Context, uri string)
}

// Load scans root and tracks every file found, returning how many were
// tracked.
func Load(ctx context.Context, t Tracker, root string, opts Options) (int, error) {
	files, err := Scan(ctx, root, opts)
	if err != nil {
		return 0, err
	}
	for _, f := range files {
		t.TrackDocument(ctx, f.URI, f.Text)
	}
	return len(files), nil
}
