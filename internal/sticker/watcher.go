package sticker

import (
	"crypto/sha256"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a Selector's table file and reloads it when the content
// changes. A reload that fails leaves the previous table live and is retried
// on the next content change.
type Watcher struct {
	sel      *Selector
	interval time.Duration
	onReload func(categories int, err error)

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithPollInterval sets the polling interval. The default is 5 seconds.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithReloadHook registers fn to be called after every reload attempt.
func WithReloadHook(fn func(categories int, err error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// Watch starts polling sel's table file in a background goroutine.
func Watch(sel *Selector, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		sel:      sel,
		interval: 5 * time.Second,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	if data, info, err := w.read(); err == nil {
		w.lastHash = sha256.Sum256(data)
		w.lastMtime = info.ModTime()
	}

	w.wg.Add(1)
	go w.poll()
	return w
}

// Stop stops polling and waits for the goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *Watcher) poll() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.sel.Path())
	if err != nil || info.ModTime().Equal(w.lastMtime) {
		return
	}
	data, info, err := w.read()
	if err != nil {
		slog.Warn("sticker watcher: cannot read table", "path", w.sel.Path(), "err", err)
		return
	}
	w.lastMtime = info.ModTime()
	hash := sha256.Sum256(data)
	if hash == w.lastHash {
		return
	}
	w.lastHash = hash

	n, err := w.sel.Reload()
	if err != nil {
		slog.Warn("sticker watcher: reload failed, keeping previous table", "err", err)
	}
	if w.onReload != nil {
		w.onReload(n, err)
	}
}

func (w *Watcher) read() ([]byte, os.FileInfo, error) {
	info, err := os.Stat(w.sel.Path())
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(w.sel.Path())
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}
