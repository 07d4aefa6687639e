package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/l0p7/idxauth-fetch/auth"
)

// IndexesWatcher monitors the configured index source (file or folder) and
// invokes the supplied callback with a freshly compiled *auth.Registry
// whenever the definitions change. Stop must be called to release
// filesystem resources.
type IndexesWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *IndexesWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchIndexes wires fsnotify around the configured index source and
// recompiles the registry on any relevant change. onChange receives a new
// *auth.Registry each time; callers typically swap it into their
// auth.Transport via SetRegistry.
func (l *Loader) WatchIndexes(ctx context.Context, cfg IndexesConfig, onChange func(*auth.Registry, IndexBundle), onError func(error)) (*IndexesWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch indexes requires a change callback")
	}
	if cfg.IndexesFile == "" && cfg.IndexesFolder == "" {
		return nil, fmt.Errorf("config: no index source configured for watching")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch indexes: %w", err)
	}

	reload := func() (*auth.Registry, IndexBundle, error) {
		bundle, err := loadIndexes(watchCtx, cfg)
		if err != nil {
			return nil, IndexBundle{}, err
		}
		registry, err := auth.NewRegistry(bundle.Indexes)
		if err != nil {
			return nil, IndexBundle{}, err
		}
		return registry, bundle, nil
	}

	registry, bundle, err := reload()
	if err != nil {
		if closeErr := watcher.Close(); closeErr != nil && onError != nil {
			onError(fmt.Errorf("config: watch indexes close: %w", closeErr))
		}
		cancel()
		return nil, err
	}
	onChange(registry, bundle)

	done := make(chan struct{})
	watch := &IndexesWatcher{cancel: cancel, done: done}

	ready := make(chan struct{})
	var readyOnce sync.Once
	signalReady := func() { readyOnce.Do(func() { close(ready) }) }

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch indexes close: %w", err))
			}
		}()
		defer signalReady()

		var reloadMu sync.Mutex
		doReload := func() {
			reloadMu.Lock()
			defer reloadMu.Unlock()
			registry, bundle, err := reload()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(registry, bundle)
		}

		dirs := map[string]struct{}{}
		addDir := func(dir string) {
			dir = filepath.Clean(dir)
			if _, ok := dirs[dir]; ok {
				return
			}
			if err := watcher.Add(dir); err != nil {
				if onError != nil {
					onError(fmt.Errorf("config: watch add %s: %w", dir, err))
				}
				return
			}
			dirs[dir] = struct{}{}
		}

		targetFile := ""
		if cfg.IndexesFile != "" {
			resolved := cfg.IndexesFile
			if path, err := filepath.Abs(cfg.IndexesFile); err == nil {
				resolved = path
			} else if onError != nil {
				onError(fmt.Errorf("config: resolve indexes file: %w", err))
			}
			targetFile = filepath.Clean(resolved)
			addDir(filepath.Dir(targetFile))
		} else {
			root, err := filepath.Abs(cfg.IndexesFolder)
			if err != nil {
				if onError != nil {
					onError(fmt.Errorf("config: resolve indexes folder: %w", err))
				}
				root = cfg.IndexesFolder
			}
			if err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
				if walkErr != nil {
					if onError != nil {
						onError(fmt.Errorf("config: walk watcher %s: %w", path, walkErr))
					}
					return nil
				}
				if d.IsDir() {
					addDir(path)
				}
				return nil
			}); err != nil {
				if onError != nil {
					onError(fmt.Errorf("config: traverse watcher %s: %w", root, err))
				}
			}
		}

		signalReady()

		const debounce = 25 * time.Millisecond
		var reloadTimer *time.Timer
		var reloadSignal <-chan time.Time
		scheduleReload := func() {
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				if !reloadTimer.Stop() {
					select {
					case <-reloadTimer.C:
					default:
					}
				}
				reloadTimer.Reset(debounce)
			}
			reloadSignal = reloadTimer.C
		}
		flushTimer := func() {
			if reloadTimer == nil {
				return
			}
			if !reloadTimer.Stop() {
				select {
				case <-reloadTimer.C:
				default:
				}
			}
			reloadSignal = nil
		}
		defer flushTimer()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-reloadSignal:
				flushTimer()
				doReload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Clean(event.Name)
				if targetFile != "" {
					if name != targetFile {
						continue
					}
					if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
						if onError != nil {
							onError(fmt.Errorf("config: indexes file %s removed", targetFile))
						}
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						scheduleReload()
					}
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					info, err := os.Stat(name)
					if err == nil && info.IsDir() {
						addDir(name)
						continue
					}
				}
				if !isSupportedIndexFile(name) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) == 0 {
					continue
				}
				scheduleReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config: watch error: %w", err))
				}
			}
		}
	}()

	<-ready

	return watch, nil
}

func isSupportedIndexFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, supported := range indexFileExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}
