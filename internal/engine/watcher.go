package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"metamorph/internal/logging"
)

// WatchSource watches the managed file for external edits and flags the
// engine to reload it before the next cycle. The directory is watched rather
// than the file so editor rename-and-replace saves are still seen. Blocks
// until the context is done.
func (e *Engine) WatchSource(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create source watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(e.cfg.Paths.ManagedSource)
	if err != nil {
		return fmt.Errorf("failed to resolve managed source path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch source directory: %w", err)
	}

	logging.Evolution("watching %s for external edits", target)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || abs != target {
				continue
			}
			e.sourceDirty.Store(true)
			logging.EvolutionDebug("external edit detected on managed source")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryEvolution).Warn("source watcher error: %v", err)
		}
	}
}
