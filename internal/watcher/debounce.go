package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events for the same path into a single
// terminal event per debounce window:
//   - CREATED + MODIFIED  = CREATED (still a new file)
//   - MODIFIED + MODIFIED = MODIFIED
//   - anything + DELETED  = DELETED (deletion always wins)
//   - DELETED + CREATED   = MODIFIED (the file was replaced)
type Debouncer struct {
	window time.Duration
	// maxWait bounds how long sustained activity can postpone a flush:
	// the quiet-window timer resets on every event, so without a cap a
	// hot path would defer every other pending path indefinitely.
	maxWait time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]Event
	oldest  time.Time
	timer   *time.Timer
	output  chan []Event
	stopped bool
}

// NewDebouncer creates a debouncer emitting coalesced batches after
// window of quiet time, or after 4x window under sustained activity.
func NewDebouncer(window time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		window:  window,
		maxWait: 4 * window,
		logger:  logger,
		pending: make(map[string]Event),
		output:  make(chan []Event, 16),
	}
}

// Add records an event, coalescing with any pending event for the path.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if len(d.pending) == 0 {
		d.oldest = time.Now()
	}
	if prev, ok := d.pending[ev.Path]; ok {
		ev = coalesce(prev, ev)
	}
	d.pending[ev.Path] = ev

	delay := d.window
	if remaining := d.maxWait - time.Since(d.oldest); remaining < delay {
		delay = remaining
		if delay < 0 {
			delay = 0
		}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.flushTimer)
}

func coalesce(prev, next Event) Event {
	switch {
	case next.Op == OpDeleted:
		// Deletion overrides whatever came before it.
		return next
	case prev.Op == OpDeleted && next.Op == OpCreated:
		next.Op = OpModified
		return next
	case prev.Op == OpCreated && next.Op == OpModified:
		next.Op = OpCreated
		return next
	default:
		return next
	}
}

// flushTimer runs on timer expiry. The stopped check and the send share
// the lock so a flush can never race Stop closing the channel.
func (d *Debouncer) flushTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}
	batch := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	select {
	case d.output <- batch:
		d.pending = make(map[string]Event)
		d.oldest = time.Time{}
	default:
		// The consumer is still working through earlier batches. Keep
		// the events and retry next window; dropping them would lose
		// deletions until the next full reconcile.
		d.logger.Debug("debounce output full, holding batch",
			slog.Int("batch_size", len(batch)))
		d.timer = time.AfterFunc(d.window, d.flushTimer)
	}
}

// Drain returns all pending events immediately without emitting them on
// the output channel. Used during shutdown.
func (d *Debouncer) Drain() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.takePendingLocked()
}

func (d *Debouncer) takePendingLocked() []Event {
	batch := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	d.pending = make(map[string]Event)
	d.oldest = time.Time{}
	return batch
}

// Output is the channel of coalesced batches.
func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

// Stop halts timers and closes the output channel. Safe to call twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
