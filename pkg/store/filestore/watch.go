package filestore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch calls onChange every time the backing file is written, created,
// replaced or removed, until ctx is done. The parent directory is watched
// because atomic saves replace the file rather than write to it.
//
// Watch blocks. It returns nil when ctx is cancelled and an error when the
// watcher fails.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	if onChange == nil {
		return fmt.Errorf("filestore: watch callback is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filestore: create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("filestore: watch %s: %w", dir, err)
	}
	s.logger.Debug("watching override file", zap.String("path", s.path))

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path || event.Op&relevant == 0 {
				continue
			}
			s.logger.Debug("override file changed",
				zap.String("path", s.path),
				zap.String("op", event.Op.String()),
			)
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("override file watch failed", zap.String("path", s.path), zap.Error(err))
			return fmt.Errorf("filestore: watch %s: %w", s.path, err)
		}
	}
}
