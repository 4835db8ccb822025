// Package ticker implements the global epoch clock described in
// SPEC_FULL.md §4.2: a single goroutine that publishes a TickEvent on a
// fixed interval so the scheduler and consensus engine can reason about
// wall-clock deadlines without polling time.Now() themselves. Grounded on
// original_source/celaya_python/runtime/ticker.py's asyncio loop,
// reshaped around a context-cancellable goroutine and a time.Ticker.
package ticker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lyra-sh/lyra/bus"
	"github.com/lyra-sh/lyra/internal/logging"
)

// TickEvent is the payload published on bus.TopicTicker every interval.
type TickEvent struct {
	Epoch     uint64
	Timestamp time.Time
}

// Ticker drives the system clock. Start is idempotent while running;
// Stop blocks until the driving goroutine has exited.
type Ticker struct {
	bus      *bus.Bus
	log      logging.Logger
	interval time.Duration

	epoch   atomic.Uint64
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Ticker that publishes on b every interval. A nil logger
// defaults to a no-op logger.
func New(b *bus.Bus, interval time.Duration, log logging.Logger) *Ticker {
	if log == nil {
		log = logging.NoOp()
	}
	return &Ticker{bus: b, log: log, interval: interval}
}

// IsRunning reports whether the driving goroutine is active.
func (t *Ticker) IsRunning() bool { return t.running.Load() }

// Epoch returns the most recently published epoch number.
func (t *Ticker) Epoch() uint64 { return t.epoch.Load() }

// Start launches the ticking goroutine. Calling Start while already
// running is a no-op.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running.Load() {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running.Store(true)

	go t.run(runCtx)
}

// Stop halts the ticking goroutine and waits for it to exit.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Ticker) run(ctx context.Context) {
	defer func() {
		t.running.Store(false)
		close(t.done)
	}()

	clock := time.NewTicker(t.interval)
	defer clock.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-clock.C:
			epoch := t.epoch.Add(1)
			evt := TickEvent{Epoch: epoch, Timestamp: now}
			t.bus.Publish(ctx, bus.TopicTicker, evt, "ticker")
			t.log.Debug("tick", zap.Uint64("epoch", epoch))
		}
	}
}
