// Package notifier implements the polling change-detection loop.
//
// One loop samples the store's newest write timestamp and the active
// mode at a fixed cadence and tells the broadcast hub when either
// changed. Polling instead of per-write push is deliberate: many rapid
// writes between two ticks coalesce into exactly one full-refresh
// broadcast, which bounds fan-out volume during bursty control activity
// regardless of write rate.
package notifier

import (
	"context"
	"time"

	"github.com/hearth-home/hearth/internal/device"
)

// Store is the read surface the notifier samples each tick.
type Store interface {
	LastChanged(ctx context.Context) (ts string, ok bool, err error)
	ActiveMode(ctx context.Context) (mode device.Mode, ok bool, err error)
}

// Broadcaster is the hub surface the notifier drives. ClientCount
// gates the store reads: an idle hub costs nothing per tick.
type Broadcaster interface {
	ClientCount() int
	FullRefresh()
	ModeChange(mode string)
}

// Logger is the minimal logging interface the notifier needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier polls the store and emits coalesced change broadcasts.
type Notifier struct {
	store    Store
	hub      Broadcaster
	logger   Logger
	interval time.Duration

	// Baseline from the previous tick. The first observed tick only
	// captures these and never counts as a change.
	primed   bool
	prevTS   string
	prevMode string
}

// New creates a Notifier. logger may be nil.
func New(store Store, hub Broadcaster, interval time.Duration, logger Logger) *Notifier {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Notifier{
		store:    store,
		hub:      hub,
		logger:   logger,
		interval: interval,
	}
}

// Run drives the polling loop until ctx is cancelled. A failed tick is
// logged and the loop proceeds to the next one; only cancellation stops
// it. Always returns nil so a graceful shutdown is not reported as an
// error.
func (n *Notifier) Run(ctx context.Context) error {
	n.logger.Debug("change notifier started", "interval", n.interval)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.Debug("change notifier stopped")
			return nil
		case <-ticker.C:
			n.tick(ctx)
		}
	}
}

// tick runs one polling cycle.
func (n *Notifier) tick(ctx context.Context) {
	// No viewers, no store reads. This bounds idle cost; the baseline
	// stays untouched so the first tick after a viewer connects primes
	// it fresh.
	if n.hub.ClientCount() == 0 {
		return
	}

	ts, _, err := n.store.LastChanged(ctx)
	if err != nil {
		n.logger.Warn("notifier tick: last-changed read failed", "error", err)
		return
	}

	mode, hasMode, err := n.store.ActiveMode(ctx)
	if err != nil {
		n.logger.Warn("notifier tick: active-mode read failed", "error", err)
		return
	}
	currentMode := ""
	if hasMode {
		currentMode = string(mode)
	}

	if !n.primed {
		n.prevTS = ts
		n.prevMode = currentMode
		n.primed = true
		return
	}

	if ts != n.prevTS {
		n.prevTS = ts
		n.hub.FullRefresh()
	}

	if currentMode != n.prevMode {
		n.prevMode = currentMode
		n.hub.ModeChange(currentMode)
	}
}
