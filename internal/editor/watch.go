package editor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Editors save in bursts (truncate, write, rename). Collapse them into one
// reload per burst.
const watchDebounce = 100 * time.Millisecond

// WatchFile follows external edits of a file loaded from the command line and
// pushes them into the session. The parent directory is watched because most
// editors replace the file via rename, which drops a watch on the file itself.
func (c *Controller) WatchFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve watch path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	c.watcher = watcher
	go c.runWatcher(abs)

	c.logger.Info("watching file", slog.String("path", abs))
	return nil
}

func (c *Controller) runWatcher(target string) {
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(watchDebounce)
		case <-timer.C:
			c.reloadFromDisk(target)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("watcher error", slog.Any("err", err))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) reloadFromDisk(target string) {
	data, err := os.ReadFile(target) // #nosec G304 -- path was given on the command line
	if err != nil {
		c.logger.Warn("reload failed", slog.String("path", target), slog.Any("err", err))
		return
	}

	c.mu.Lock()
	unchanged := c.st.Markdown == string(data)
	c.mu.Unlock()
	if unchanged {
		return
	}

	c.SetContent(string(data))
	c.notify(LevelInfo, fmt.Sprintf("Reloaded %s from disk.", filepath.Base(target)))
}
