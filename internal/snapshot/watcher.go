package snapshot

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/domain"
	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of events a single atomic save produces.
const debounce = 200 * time.Millisecond

// Watch reports snapshots written to the file by anyone, including another
// process running a one-shot sync. onChange is called with each snapshot that
// parses; stale ones are passed too and callers decide. Watch blocks until ctx
// is cancelled.
func (s *FileStore) Watch(ctx context.Context, onChange func(*domain.Snapshot)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: atomic renames replace the file's inode.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(s.path)
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			snap, err := s.Read(ctx)
			if err != nil {
				s.log.WithError(err).Debug("ignoring unreadable snapshot change")
				continue
			}
			onChange(snap)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.WithError(err).Warn("snapshot watcher error")
		}
	}
}
