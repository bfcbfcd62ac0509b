package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceDelay coalesces editor write bursts into one reload
const debounceDelay = 200 * time.Millisecond

// Watcher reloads the configuration when its file changes and hands the
// fresh config to the callback. A file that fails to load keeps the last
// good configuration.
type Watcher struct {
	loader   *Loader
	path     string
	onChange func(*Config)
	logger   zerolog.Logger

	fw   *fsnotify.Watcher
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewWatcher watches configPath for changes. onChange runs on the watcher
// goroutine after every successful reload.
func NewWatcher(configPath string, onChange func(*Config), logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors and atomic writers replace
	// the file, which drops a direct file watch.
	if err := fw.Add(filepath.Dir(configPath)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		loader:   NewLoader(configPath),
		path:     filepath.Clean(configPath),
		onChange: onChange,
		logger:   logger,
		fw:       fw,
		stop:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				timerC = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")

		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn().Err(err).Msg("Config reload failed, keeping previous")
		return
	}

	w.logger.Info().Str("path", w.path).Msg("Configuration reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.fw.Close()
		w.wg.Wait()
	})
	return err
}
