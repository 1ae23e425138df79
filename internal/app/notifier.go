package app

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jaakkos/gwp/internal/domain"
)

const (
	defaultDebounceMs   = 200
	defaultPollInterval = 10 * time.Second
	refreshTimeout      = 30 * time.Second
)

// Refresher is implemented by Store. Notifier calls RefreshAll when the
// refresh signal file changes.
type Refresher interface {
	RefreshAll(ctx context.Context, cs ...domain.Collection) error
}

// Notifier watches the refresh signal file and refreshes the store whenever
// a new revision is written to it (see TouchNotifySignal). Another process,
// such as "gwp refresh", can therefore reload a running dashboard.
type Notifier struct {
	signalPath   string
	refresher    Refresher
	collections  []domain.Collection
	logger       *log.Logger
	debounceMs   int
	pollInterval time.Duration

	mu            sync.Mutex
	lastRev       string
	debounceTimer *time.Timer
	watcher       *fsnotify.Watcher
	started       bool
	stopCh        chan struct{}
	stopOnce      sync.Once
	doneCh        chan struct{}
	runMu         sync.Mutex // serializes checkAndRefresh
}

// NotifierOption configures the notifier.
type NotifierOption func(*Notifier)

// WithPollInterval sets the fallback poll interval (default 10s).
func WithPollInterval(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.pollInterval = d
		}
	}
}

// WithCollections limits the refresh to the given collections (default all).
func WithCollections(cs ...domain.Collection) NotifierOption {
	return func(n *Notifier) {
		n.collections = cs
	}
}

// NewNotifier creates a notifier for signalPath.
func NewNotifier(signalPath string, refresher Refresher, logger *log.Logger, opts ...NotifierOption) *Notifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	n := &Notifier{
		signalPath:   signalPath,
		refresher:    refresher,
		logger:       logger,
		debounceMs:   defaultDebounceMs,
		pollInterval: defaultPollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	// The revision present at startup is not a change.
	n.lastRev = n.readSignalRevision()
	return n
}

// Start starts the file watcher and fallback poll. Returns when ctx is cancelled.
// If fsnotify fails to initialize, falls back to poll-only mode. Only the
// first call runs; later calls return at once.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.mu.Unlock()
	defer close(n.doneCh)

	watchDir := filepath.Dir(n.signalPath)
	signalName := filepath.Base(n.signalPath)

	if err := os.MkdirAll(watchDir, 0755); err != nil {
		n.logger.Printf("Notifier: create %s failed (%v)", watchDir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		n.logger.Printf("Notifier: fsnotify init failed (%v), using poll-only", err)
	} else if err := watcher.Add(watchDir); err != nil {
		n.logger.Printf("Notifier: fsnotify add %s failed (%v), using poll-only", watchDir, err)
		_ = watcher.Close()
	} else {
		n.watcher = watcher
		defer n.watcher.Close()
		go n.watchLoop(ctx, signalName)
	}

	n.pollLoop(ctx)
}

// Stop signals the notifier to stop and waits for a running Start to return.
// It is safe to call more than once, and without Start.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	n.mu.Lock()
	started := n.started
	n.mu.Unlock()
	if started {
		<-n.doneCh
	}
}

// CheckOnce runs one check-and-refresh cycle. It reports whether a refresh ran.
func (n *Notifier) CheckOnce(ctx context.Context) bool {
	return n.checkAndRefresh(ctx)
}

func (n *Notifier) watchLoop(ctx context.Context, signalName string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != signalName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			n.triggerDebounced(ctx)
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Printf("Notifier: watch error: %v", err)
		}
	}
}

func (n *Notifier) triggerDebounced(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.debounceTimer != nil {
		n.debounceTimer.Stop()
	}
	n.debounceTimer = time.AfterFunc(time.Duration(n.debounceMs)*time.Millisecond, func() {
		n.checkAndRefresh(ctx)
	})
}

func (n *Notifier) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.checkAndRefresh(ctx)
		}
	}
}

func (n *Notifier) checkAndRefresh(ctx context.Context) bool {
	n.runMu.Lock()
	defer n.runMu.Unlock()

	rev := n.readSignalRevision()
	if rev == "" {
		return false
	}
	n.mu.Lock()
	if rev == n.lastRev {
		n.mu.Unlock()
		return false
	}
	n.lastRev = rev
	n.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	if err := n.refresher.RefreshAll(rctx, n.collections...); err != nil {
		// The store keeps its previous snapshots; the next revision retries.
		n.logger.Printf("Notifier: refresh for revision %s failed: %v", rev, err)
	} else {
		n.logger.Printf("Notifier: refreshed for revision %s", rev)
	}
	return true
}

func (n *Notifier) readSignalRevision() string {
	data, err := os.ReadFile(n.signalPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
