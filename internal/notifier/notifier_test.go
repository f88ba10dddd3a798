package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hearth-home/hearth/internal/device"
)

// fakeStore serves mutable sample values.
type fakeStore struct {
	ts      string
	mode    device.Mode
	hasMode bool
	err     error
}

func (f *fakeStore) LastChanged(context.Context) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return f.ts, f.ts != "", nil
}

func (f *fakeStore) ActiveMode(context.Context) (device.Mode, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return f.mode, f.hasMode, nil
}

// fakeHub counts broadcasts.
type fakeHub struct {
	clients   int
	refreshes int
	modes     []string
}

func (f *fakeHub) ClientCount() int { return f.clients }

func (f *fakeHub) FullRefresh() { f.refreshes++ }

func (f *fakeHub) ModeChange(mode string) { f.modes = append(f.modes, mode) }

func TestTick_FirstObservationIsBaseline(t *testing.T) {
	store := &fakeStore{ts: "2026-03-01T10:00:00.000000000Z"}
	hub := &fakeHub{clients: 1}
	n := New(store, hub, time.Millisecond, nil)
	ctx := context.Background()

	n.tick(ctx)
	if hub.refreshes != 0 || len(hub.modes) != 0 {
		t.Errorf("baseline tick broadcast refreshes=%d modes=%v, want none", hub.refreshes, hub.modes)
	}

	// Unchanged values stay quiet
	n.tick(ctx)
	if hub.refreshes != 0 {
		t.Errorf("unchanged tick broadcast %d refreshes, want 0", hub.refreshes)
	}
}

func TestTick_TimestampDeltaEmitsOneRefresh(t *testing.T) {
	store := &fakeStore{ts: "2026-03-01T10:00:00.000000000Z"}
	hub := &fakeHub{clients: 2}
	n := New(store, hub, time.Millisecond, nil)
	ctx := context.Background()

	n.tick(ctx) // baseline

	// Many writes land between ticks; the notifier only sees the final
	// timestamp and coalesces them into one refresh.
	store.ts = "2026-03-01T10:00:05.000000000Z"
	n.tick(ctx)
	if hub.refreshes != 1 {
		t.Errorf("refreshes = %d, want exactly 1", hub.refreshes)
	}

	// Quiet again until the next delta
	n.tick(ctx)
	if hub.refreshes != 1 {
		t.Errorf("refreshes after quiet tick = %d, want still 1", hub.refreshes)
	}
}

func TestTick_ModeDelta(t *testing.T) {
	store := &fakeStore{ts: "2026-03-01T10:00:00.000000000Z"}
	hub := &fakeHub{clients: 1}
	n := New(store, hub, time.Millisecond, nil)
	ctx := context.Background()

	n.tick(ctx) // baseline with no active mode

	store.mode = device.ModeAway
	store.hasMode = true
	n.tick(ctx)

	if len(hub.modes) != 1 || hub.modes[0] != "away" {
		t.Errorf("mode broadcasts = %v, want [away]", hub.modes)
	}
	if hub.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0 for mode-only delta", hub.refreshes)
	}
}

func TestTick_BothSignalsSameTick(t *testing.T) {
	store := &fakeStore{ts: "2026-03-01T10:00:00.000000000Z"}
	hub := &fakeHub{clients: 1}
	n := New(store, hub, time.Millisecond, nil)
	ctx := context.Background()

	n.tick(ctx) // baseline

	// A mode activation moves both the timestamp and the mode
	store.ts = "2026-03-01T10:00:01.000000000Z"
	store.mode = device.ModeSleep
	store.hasMode = true
	n.tick(ctx)

	if hub.refreshes != 1 || len(hub.modes) != 1 {
		t.Errorf("refreshes=%d modes=%v, want both signals in one tick", hub.refreshes, hub.modes)
	}
}

func TestTick_ZeroClientsSkipsStoreReads(t *testing.T) {
	store := &fakeStore{err: errors.New("store must not be read")}
	hub := &fakeHub{clients: 0}
	n := New(store, hub, time.Millisecond, nil)

	// With zero clients the erroring store is never touched
	n.tick(context.Background())
	if hub.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", hub.refreshes)
	}
}

func TestTick_ErrorSkipsCycle(t *testing.T) {
	store := &fakeStore{ts: "2026-03-01T10:00:00.000000000Z"}
	hub := &fakeHub{clients: 1}
	n := New(store, hub, time.Millisecond, nil)
	ctx := context.Background()

	n.tick(ctx) // baseline

	// A failed cycle emits nothing and keeps the baseline
	store.err = errors.New("database is locked")
	store.ts = "2026-03-01T10:00:09.000000000Z"
	n.tick(ctx)
	if hub.refreshes != 0 {
		t.Errorf("refreshes during failure = %d, want 0", hub.refreshes)
	}

	// Recovery picks up the pending delta on the next tick
	store.err = nil
	n.tick(ctx)
	if hub.refreshes != 1 {
		t.Errorf("refreshes after recovery = %d, want 1", hub.refreshes)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := &fakeStore{ts: "2026-03-01T10:00:00.000000000Z"}
	hub := &fakeHub{clients: 0}
	n := New(store, hub, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- n.Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil on cancellation", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
}
