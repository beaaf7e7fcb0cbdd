package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
	"github.com/meghashyamc/homeindex/logger"
)

// Entry is one filesystem object seen by a walk. Depth is 1 for direct
// children of the walked root.
type Entry struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
	Depth   int
}

type WalkOptions struct {
	// MaxDepth of zero or less means unlimited.
	MaxDepth              int
	ExcludedPathFragments []string
	// ExcludedGlobs are doublestar patterns matched against the
	// slash-separated path relative to the walked root.
	ExcludedGlobs    []string
	ExcludedDirNames []string
	Ignore           gitignore.GitIgnore
	// Directories makes the walk visit directories instead of files.
	Directories bool
}

// RootError is an unrecoverable I/O failure on the walked root itself.
type RootError struct {
	Root string
	Err  error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("failed to walk root %s: %s", e.Root, e.Err)
}

func (e *RootError) Unwrap() error {
	return e.Err
}

type Crawler struct {
	logger logger.Logger
}

func NewCrawler(logger logger.Logger) *Crawler {
	return &Crawler{logger: logger}
}

// Walk visits every entry under root that passes opts. Hidden entries and
// non-regular files are never visited. Per-entry errors are logged and
// skipped; only a failure on root itself or ctx cancellation stops the walk.
// visit may return filepath.SkipDir to prune a directory.
func (c *Crawler) Walk(ctx context.Context, root string, opts WalkOptions, visit func(Entry) error) error {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("skipping root that does not exist", "root", root)
			return nil
		}
		return &RootError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return &RootError{Root: root, Err: errors.New("not a directory")}
	}

	// WalkDir does not descend into a symlinked root, so walk its target
	// and report entries under the configured root.
	walkRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return &RootError{Root: root, Err: err}
	}

	excludedDirNames := make(map[string]struct{}, len(opts.ExcludedDirNames))
	for _, name := range opts.ExcludedDirNames {
		excludedDirNames[name] = struct{}{}
	}

	return filepath.WalkDir(walkRoot, func(walkPath string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if walkPath == walkRoot {
			if err != nil {
				return &RootError{Root: root, Err: err}
			}
			return nil
		}

		if err != nil {
			c.logger.Debug("skipping unreadable entry", "path", walkPath, "err", err.Error())
			return skip(d)
		}

		relativePath, err := filepath.Rel(walkRoot, walkPath)
		if err != nil {
			c.logger.Debug("skipping entry outside root", "path", walkPath, "err", err.Error())
			return skip(d)
		}
		path := filepath.Join(root, relativePath)
		relativePath = filepath.ToSlash(relativePath)
		depth := strings.Count(relativePath, "/") + 1

		if opts.MaxDepth > 0 && depth > opts.MaxDepth {
			return skip(d)
		}
		if isExcluded(path, relativePath, d, opts, excludedDirNames) {
			return skip(d)
		}

		if d.IsDir() {
			if opts.Directories {
				if err := visit(Entry{Path: path, Name: d.Name(), IsDir: true, Depth: depth}); err != nil {
					return err
				}
			}
			if opts.MaxDepth > 0 && depth == opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if opts.Directories || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			c.logger.Debug("skipping file without metadata", "path", path, "err", err.Error())
			return nil
		}

		return visit(Entry{
			Path:    path,
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
			Depth:   depth,
		})
	})
}

func isExcluded(path string, relativePath string, d fs.DirEntry, opts WalkOptions, excludedDirNames map[string]struct{}) bool {
	if strings.HasPrefix(d.Name(), ".") {
		return true
	}

	if d.IsDir() {
		if _, ok := excludedDirNames[d.Name()]; ok {
			return true
		}
	}

	for _, fragment := range opts.ExcludedPathFragments {
		if fragment != "" && strings.Contains(path, fragment) {
			return true
		}
	}

	for _, pattern := range opts.ExcludedGlobs {
		if matched, err := doublestar.Match(pattern, relativePath); err == nil && matched {
			return true
		}
	}

	if opts.Ignore != nil {
		if match := opts.Ignore.Relative(relativePath, d.IsDir()); match != nil && match.Ignore() {
			return true
		}
	}

	return false
}

func skip(d fs.DirEntry) error {
	if d != nil && d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}
