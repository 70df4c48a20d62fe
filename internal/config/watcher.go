package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher reloads the settings file when it changes on disk, so
// hand edits take effect without a restart. The parent directory is
// watched because saves replace the file via rename. Failure to set up
// the watcher is logged and otherwise ignored.
func (s *Store) StartWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn().Err(err).Msg("settings watcher unavailable")
		return
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		s.log.Warn().Err(err).Str("dir", dir).Msg("settings watcher failed to watch directory")
		watcher.Close()
		return
	}

	target := filepath.Clean(s.path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// Our own saves land here too; skip those.
				if s.sinceSave() < time.Second {
					continue
				}
				// Let the writer finish before reading.
				time.Sleep(100 * time.Millisecond)
				if err := s.Reload(); err != nil {
					s.log.Warn().Err(err).Msg("settings reload failed")
					continue
				}
				s.log.Info().Msg("settings file changed, reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("settings watcher error")
			}
		}
	}()
}
