package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadCallback is called with the freshly loaded config after the
// config file changes on disk.
type ReloadCallback func(cfg *Config)

// Watcher reloads the config file when it changes, debouncing rapid
// writes from editors that save in multiple events.
type Watcher struct {
	path     string
	callback ReloadCallback
	watcher  *fsnotify.Watcher
	debounce time.Duration

	timer *time.Timer
	mu    sync.Mutex
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, callback ReloadCallback) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     path,
		callback: callback,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
	}

	// Watch the directory: editors often replace the file, which drops
	// a watch set directly on it.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	return w, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		cfg, err := Load(w.path)
		if err != nil {
			return
		}
		w.callback(cfg)
	})
}
