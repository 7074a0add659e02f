package goAuthz

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher moves events off the request path. Emit enqueues under a
// read lock; Close takes the write lock, so once it has closed the queue no
// Emit can still be sending on it. The worker delivers whatever is queued
// before finishing.
type auditDispatcher struct {
	dropIfFull bool
	sink       AuditSink

	mu     sync.RWMutex
	closed bool
	queue  chan AuditEvent

	finished chan struct{}
	dropped  atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = DiscardSink{}
	}

	d := &auditDispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		queue:      make(chan AuditEvent, size),
		finished:   make(chan struct{}),
	}
	go d.deliver()
	return d
}

func (d *auditDispatcher) deliver() {
	defer close(d.finished)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit enqueues event. A full queue drops the event when dropIfFull is set
// and otherwise waits for room or for ctx to end. Events emitted after
// Close are ignored.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	}
}

// Close stops intake and returns once queued events reached the sink.
// Repeated calls return immediately after the first completes.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.finished
}

// Dropped is the number of events lost to a full queue.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
