package broadcast

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/oklog/ulid/v2"
)

// ErrTransport wraps failures reported by a Transport.
var ErrTransport = errors.New("broadcast transport failure")

// Handler receives one update. Handlers run synchronously on the publishing
// goroutine for local updates and on the Run goroutine for remote ones.
type Handler func(ctx context.Context, u Update)

// Transport carries encoded updates between instances.
type Transport interface {
	// Publish hands payload to the shared channel.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe calls deliver for every payload observed on the shared
	// channel, including this instance's own, until ctx is done or the
	// channel fails. It returns nil on cancellation.
	Subscribe(ctx context.Context, deliver func(payload []byte)) error
	Close() error
}

// Options configures a Broadcaster.
type Options struct {
	// Origin identifies this instance on the shared channel. A ULID is
	// generated when empty.
	Origin string
	Logger logr.Logger
	Now    func() time.Time
}

// Stats counts broadcaster traffic.
type Stats struct {
	Published   uint64
	Received    uint64
	EchoSkipped uint64
	Malformed   uint64
	Subscribers int
}

// Broadcaster fans updates out to local handlers and a Transport.
type Broadcaster struct {
	transport Transport
	origin    string
	log       logr.Logger
	now       func() time.Time

	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy

	published   atomic.Uint64
	received    atomic.Uint64
	echoSkipped atomic.Uint64
	malformed   atomic.Uint64
}

// New returns a Broadcaster. transport may be nil for a single-process
// deployment.
func New(transport Transport, opts Options) *Broadcaster {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	b := &Broadcaster{
		transport: transport,
		log:       opts.Logger,
		now:       opts.Now,
		handlers:  make(map[uint64]Handler),
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
	b.origin = opts.Origin
	if b.origin == "" {
		b.origin = b.newID()
	}
	return b
}

// HasTransport reports whether updates leave this process.
func (b *Broadcaster) HasTransport() bool {
	return b.transport != nil
}

// Origin returns the instance identifier stamped on published updates.
func (b *Broadcaster) Origin() string {
	return b.origin
}

// Subscribe registers h and returns a function that removes it. The
// returned function is safe to call more than once.
func (b *Broadcaster) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers u to every local handler and then to the transport.
// A transport failure is returned after local delivery has completed.
func (b *Broadcaster) Publish(ctx context.Context, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = b.newID()
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = b.now().UTC()
	}
	if u.Origin == "" {
		u.Origin = b.origin
	}

	b.published.Add(1)
	b.dispatch(ctx, u)

	if b.transport == nil {
		return nil
	}
	payload, err := Encode(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	if err := b.transport.Publish(ctx, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Run consumes the transport until ctx is done. Without a transport it just
// waits for ctx.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.transport == nil {
		<-ctx.Done()
		return nil
	}
	err := b.transport.Subscribe(ctx, func(payload []byte) {
		b.receive(ctx, payload)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Close closes the transport.
func (b *Broadcaster) Close() error {
	if b.transport == nil {
		return nil
	}
	return b.transport.Close()
}

// Stats returns traffic counters.
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	n := len(b.handlers)
	b.mu.RUnlock()
	return Stats{
		Published:   b.published.Load(),
		Received:    b.received.Load(),
		EchoSkipped: b.echoSkipped.Load(),
		Malformed:   b.malformed.Load(),
		Subscribers: n,
	}
}

func (b *Broadcaster) receive(ctx context.Context, payload []byte) {
	u, err := Decode(payload)
	if err != nil {
		b.malformed.Add(1)
		b.log.Error(err, "dropping broadcast payload", "bytes", len(payload))
		return
	}
	if u.Origin == b.origin {
		b.echoSkipped.Add(1)
		return
	}
	b.received.Add(1)
	b.log.V(1).Info("remote permission update", "id", u.ID, "type", string(u.Type), "origin", u.Origin)
	b.dispatch(ctx, u)
}

func (b *Broadcaster) dispatch(ctx context.Context, u Update) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(ctx, h, u)
	}
}

func (b *Broadcaster) invoke(ctx context.Context, h Handler, u Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(fmt.Errorf("panic: %v", r), "broadcast handler panicked", "id", u.ID, "type", string(u.Type))
		}
	}()
	h(ctx, u)
}

func (b *Broadcaster) newID() string {
	b.entropyMu.Lock()
	defer b.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(b.now()), b.entropy).String()
}
