package devchain

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchLog signals whenever the database at dbPath, its WAL or its
// shared-memory file is written or created. Bursts closer together than
// debounce produce one signal, and at most one signal is ever pending. The
// directory is watched rather than the file so writes from other processes
// show up. Watching stops when ctx ends.
func watchLog(ctx context.Context, dbPath string, debounce time.Duration, log *slog.Logger) (<-chan struct{}, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(dbPath)); err != nil {
		fw.Close()
		return nil, err
	}
	changes := make(chan struct{}, 1)
	go debounceWrites(ctx, fw, filepath.Base(dbPath), debounce, changes, log)
	return changes, nil
}

// isLogFile reports whether name is db or one of its SQLite sidecars.
func isLogFile(name, db string) bool {
	suffix, ok := strings.CutPrefix(filepath.Base(name), db)
	return ok && (suffix == "" || suffix == "-wal" || suffix == "-shm")
}

func debounceWrites(ctx context.Context, fw *fsnotify.Watcher, db string, debounce time.Duration, changes chan<- struct{}, log *slog.Logger) {
	defer fw.Close()
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) || !isLogFile(ev.Name, db) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			select {
			case changes <- struct{}{}:
			default:
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Debug("devnet watch error", "db", db, "err", err)
		}
	}
}
