// Package watch turns filesystem activity under a set of roots into
// debounced rebuild triggers.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// Watcher registers every path under its roots with the platform notifier
// and forwards each notification as one signal. Registration happens once;
// files created later are not picked up until the supervisor restarts.
type Watcher struct {
	fs      *fsnotify.Watcher
	signals *Signals
	logger  *slog.Logger
	paths   int
}

// New enumerates roots and registers each discovered path individually.
// Hidden entries below a root are skipped, as is anything excluded by a
// .gitignore or .ignore file inside the tree or lying under an ignore prefix.
// Roots and prefixes must be absolute. Any enumeration or registration
// failure is returned.
func New(roots, prefixes []string, signals *Signals, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{fs: fw, signals: signals, logger: logger}
	for _, root := range roots {
		if err := w.addTree(root, prefixes); err != nil {
			fw.Close()
			return nil, err
		}
	}
	logger.Info("watching paths", "roots", roots, "paths", w.paths)
	return w, nil
}

func (w *Watcher) addTree(root string, prefixes []string) error {
	rules := newIgnoreRules(root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking %s: %w", path, err)
		}
		skip := Ignored(path, prefixes)
		if path != root {
			skip = skip || strings.HasPrefix(d.Name(), ".") || rules.excluded(path, d.IsDir())
		}
		if skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := rules.load(path); err != nil {
				return err
			}
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		w.paths++
		return nil
	})
}

// Ignored reports whether path equals one of the prefixes or lies beneath
// one. Matching is by whole path components, so /src/target does not cover
// /src/targetfoo.
func Ignored(path string, prefixes []string) bool {
	sep := string(filepath.Separator)
	for _, p := range prefixes {
		p = filepath.Clean(p)
		if path == p {
			return true
		}
		if !strings.HasSuffix(p, sep) {
			p += sep
		}
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Paths returns the number of registered paths.
func (w *Watcher) Paths() int {
	return w.paths
}

// Run forwards notifications until ctx is done, then releases the notifier.
func (w *Watcher) Run(ctx context.Context) error {
	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = w.fs.Close()
	})

	sctx.Go(func(sctx *stopper.Context) error {
		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-w.fs.Events:
				if !ok {
					return nil
				}
				w.logger.Debug("change", "path", event.Name, "op", event.Op.String())
				w.signals.Notify()

			case err, ok := <-w.fs.Errors:
				if !ok {
					return nil
				}
				if err != nil {
					w.logger.Warn("watcher error", "error", err)
				}
			}
		}
		return nil
	})

	<-ctx.Done()
	sctx.Stop(100 * time.Millisecond)
	if err := sctx.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
