package config

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Watcher re-parses config/default.yaml on change and atomically swaps
// the hot-reloadable subset. Server fields are read once at Load and
// never updated by the watcher; changing them requires a restart.
type Watcher struct {
	path string
	hot  atomic.Pointer[Hot]
}

// NewWatcher seeds the watcher with the hot subset already parsed by
// Load, so Current never returns a nil pointer.
func NewWatcher(path string, initial Hot) *Watcher {
	w := &Watcher{path: path}
	w.hot.Store(&initial)
	return w
}

// Current returns the most recently loaded hot-reloadable config.
func (w *Watcher) Current() Hot {
	return *w.hot.Load()
}

// Start watches path for writes and reloads the hot subset on change,
// falling back to a 60s poll if the filesystem watch can't be
// established (e.g. the file lives on a filesystem fsnotify doesn't
// support).
func (w *Watcher) Start(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("config watcher: fsnotify unavailable (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(w.path); err != nil {
		log.Printf("config watcher: failed to watch %s (%v), falling back to polling", w.path, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
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
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						time.Sleep(100 * time.Millisecond)
						w.reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("config watcher error: %v", err)
				}
			}
		}()
		return
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.reload()
			}
		}
	}()
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		log.Printf("config watcher: reload read failed: %v", err)
		return
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Printf("config watcher: reload parse failed: %v", err)
		return
	}
	w.hot.Store(&cfg.Hot)
	log.Println("config watcher: hot subset reloaded")
}
