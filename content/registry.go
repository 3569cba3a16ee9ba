package content

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRescanInterval is how often the registry checks the content root
// for changed files.
const DefaultRescanInterval = 30 * time.Second

// Registry serves resources and prompts from the current snapshot of a
// content root. Reads are lock-free pointer loads; the rescanner swaps a
// whole rebuilt snapshot under a writer lock, so a request that grabbed a
// snapshot keeps using it unchanged.
type Registry struct {
	root     string
	logger   *slog.Logger
	interval time.Duration

	writeMu  sync.Mutex
	snapshot atomic.Pointer[Snapshot]
}

// NewRegistry loads the content root once and returns the serving
// registry. Load warnings (unreadable or malformed files) are logged, not
// fatal: the server starts with whatever content parsed.
func NewRegistry(root string, interval time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultRescanInterval
	}
	r := &Registry{root: root, logger: logger, interval: interval}

	snap, warnings := LoadSnapshot(root)
	for _, w := range warnings {
		logger.Warn("content load warning", "root", root, "error", w)
	}
	r.snapshot.Store(snap)
	logger.Info("content loaded",
		"root", root, "resources", len(snap.resources), "prompts", len(snap.prompts))
	return r
}

// Current returns the snapshot to use for one request.
func (r *Registry) Current() *Snapshot {
	return r.snapshot.Load()
}

// StartRescan runs the periodic rescanner until ctx is cancelled.
func (r *Registry) StartRescan(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Rescan()
			}
		}
	}()
}

// Rescan rebuilds the snapshot from disk and swaps it in if any source
// file changed. It returns whether a swap happened.
func (r *Registry) Rescan() bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	snap, warnings := LoadSnapshot(r.root)
	for _, w := range warnings {
		r.logger.Warn("content rescan warning", "root", r.root, "error", w)
	}
	if !snap.changedFrom(r.snapshot.Load()) {
		return false
	}
	r.snapshot.Store(snap)
	r.logger.Info("content reloaded",
		"root", r.root, "resources", len(snap.resources), "prompts", len(snap.prompts))
	return true
}
