package phoneverify

import (
	"context"
	"log/slog"
	"math/bits"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands audit events to a single worker goroutine that owns
// the sink.
type auditDispatcher struct {
	sink     AuditSink
	logger   *slog.Logger
	dropFull bool

	queue   chan AuditEvent
	quit    chan struct{}
	stopped chan struct{}
	stop    sync.Once

	closing atomic.Bool
	dropped atomic.Uint64
}

// newAuditDispatcher returns nil when auditing is off. A nil dispatcher
// accepts and discards everything.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *slog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &auditDispatcher{
		sink:     sink,
		logger:   logger,
		dropFull: cfg.DropIfFull,
		queue:    make(chan AuditEvent, max(cfg.BufferSize, 1)),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer close(d.stopped)

	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
			continue
		case <-d.quit:
		}
		// Flush what was accepted before Close.
		for len(d.queue) > 0 {
			d.sink.Emit(ctx, <-d.queue)
		}
		return
	}
}

// Emit queues ev. In drop mode a full queue discards ev; otherwise Emit
// waits for room, ctx cancellation or Close.
func (d *auditDispatcher) Emit(ctx context.Context, ev AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if d.dropFull {
		select {
		case d.queue <- ev:
		default:
			d.drop(ev)
		}
		return
	}

	var cancelled <-chan struct{}
	if ctx != nil {
		cancelled = ctx.Done()
	}
	select {
	case d.queue <- ev:
	case <-cancelled:
	case <-d.quit:
	}
}

// drop counts a discarded event. It logs on the 1st, 2nd, 4th, 8th... drop.
func (d *auditDispatcher) drop(ev AuditEvent) {
	n := d.dropped.Add(1)
	if bits.OnesCount64(n) == 1 {
		d.logger.Warn("audit queue full, dropping events",
			"dropped_total", n,
			"event_type", ev.EventType,
			"queue_size", cap(d.queue))
	}
}

// Close stops intake and blocks until the worker has flushed the queue.
// Repeated calls are no-ops.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stop.Do(func() {
		d.closing.Store(true)
		close(d.quit)
	})
	<-d.stopped
}

// Dropped reports how many events drop mode has discarded.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
