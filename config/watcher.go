package config

import (
	"path/filepath"
	"sync"
	"time"

	"inlinecomplete/logger"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors produce on save
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the config file when it changes on disk
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(Config)
	done     chan struct{}
	once     sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// Watch calls onChange with the freshly loaded configuration every time
// the file at path is written, created or replaced. Reloads that fail to
// parse or validate are logged and skipped. The parent directory is watched
// so atomic saves through a rename are seen.
func Watch(path string, onChange func(Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		watcher:  fw,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.processEvents()
	return w, nil
}

// Close stops watching
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
	return err
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config: watch error: %v", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := Load(w.path)
	if err != nil {
		logger.Warn("config: ignoring change to %s: %v", w.path, err)
		return
	}
	logger.Info("config: reloaded %s", w.path)
	w.onChange(cfg)
}
