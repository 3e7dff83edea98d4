package tour

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads dir into cat whenever a tour file changes, until ctx is
// done. A reload that fails validation keeps the previous contents.
func Watch(ctx context.Context, dir string, cat *Catalog) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create tour watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer fsw.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if !isYAML(filepath.Base(event.Name)) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					pending = time.After(reloadDebounce)
				}

			case <-pending:
				pending = nil
				next, err := LoadDir(dir)
				if err != nil {
					log.Printf("Warning: tour reload rejected, keeping previous catalog: %v", err)
					continue
				}
				cat.Replace(next)
				log.Printf("Reloaded %d tours from %s", len(next.Names()), dir)

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Printf("Tour watcher error: %v", err)
			}
		}
	}()
	return nil
}
