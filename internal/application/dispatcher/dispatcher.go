// Package dispatcher delivers document events to in-process subscribers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/logistics-console/internal/domain/event"
)

// ErrClosed is returned for events dispatched after Close
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes document events to registered handlers
type Dispatcher interface {
	// SubscribeNamed registers a handler for one event type
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers a handler that receives every event
	SubscribeAll(name string, handler Handler)

	// Dispatch runs all handlers in order and returns the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync queues evt for every matching subscriber and returns.
	// Each subscriber sees its events in dispatch order. Handlers get a
	// context that survives cancellation of ctx, bounded by the handler timeout.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns the handlers an event of eventType would reach
	ListHandlers(eventType event.Type) []HandlerInfo

	// Dropped returns how many async deliveries were lost to full queues
	Dropped() int64

	// Close stops accepting events and drains the queues
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type delivery struct {
	ctx context.Context
	evt *event.Event
}

// subscription owns one queue and the goroutine draining it
type subscription struct {
	info  HandlerInfo
	queue chan delivery
}

type eventDispatcher struct {
	logger    Logger
	timeout   time.Duration
	queueSize int

	mu       sync.RWMutex
	typed    map[event.Type][]*subscription
	wildcard []*subscription
	closed   bool

	wg      sync.WaitGroup
	dropped atomic.Int64
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithHandlerTimeout bounds each async handler run
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		d.timeout = timeout
	}
}

// WithQueueSize sets how many undelivered events a subscriber may hold
func WithQueueSize(n int) Option {
	return func(d *eventDispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		typed:     make(map[event.Type][]*subscription),
		timeout:   30 * time.Second,
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.subscribe(HandlerInfo{Name: name, EventType: eventType, Handler: handler})
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.subscribe(HandlerInfo{Name: name, Handler: handler})
}

func (d *eventDispatcher) subscribe(info HandlerInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logError("Cannot subscribe, dispatcher is closed", "handler_name", info.Name)
		return
	}

	sub := &subscription{info: info, queue: make(chan delivery, d.queueSize)}
	if info.EventType == "" {
		d.wildcard = append(d.wildcard, sub)
	} else {
		d.typed[info.EventType] = append(d.typed[info.EventType], sub)
	}

	d.wg.Add(1)
	go d.drain(sub)
	d.logInfo("Handler registered", "event_type", info.EventType, "handler_name", info.Name)
}

// drain runs the subscriber's handler for each queued event until Close
func (d *eventDispatcher) drain(sub *subscription) {
	defer d.wg.Done()
	for q := range sub.queue {
		ctx, cancel := context.WithTimeout(q.ctx, d.timeout)
		if err := d.safeExecute(ctx, q.evt, sub.info); err != nil {
			d.logError("Async handler error",
				"event_type", q.evt.Type,
				"event_id", q.evt.ID,
				"handler_name", sub.info.Name,
				"error", err,
			)
		}
		cancel()
	}
}

// matching returns typed subscribers first, then wildcard ones. Callers hold d.mu.
func (d *eventDispatcher) matching(eventType event.Type) []*subscription {
	out := make([]*subscription, 0, len(d.typed[eventType])+len(d.wildcard))
	out = append(out, d.typed[eventType]...)
	return append(out, d.wildcard...)
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	subs := d.matching(evt.Type)
	d.mu.RUnlock()

	for _, sub := range subs {
		if err := d.safeExecute(ctx, evt, sub.info); err != nil {
			d.logError("Handler error",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", sub.info.Name,
				"error", err,
			)
			return fmt.Errorf("handler %s failed: %w", sub.info.Name, err)
		}
	}
	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	q := delivery{ctx: context.WithoutCancel(ctx), evt: evt}

	// Sends happen under the read lock so Close cannot close a queue mid-send.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logError("Cannot dispatch async event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
		)
		return
	}

	for _, sub := range d.matching(evt.Type) {
		select {
		case sub.queue <- q:
		default:
			d.dropped.Add(1)
			d.logError("Subscriber queue full, event dropped",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", sub.info.Name,
			)
		}
	}
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	subs := d.matching(eventType)
	out := make([]HandlerInfo, len(subs))
	for i, sub := range subs {
		out[i] = sub.info
	}
	return out
}

func (d *eventDispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	for _, subs := range d.typed {
		for _, sub := range subs {
			close(sub.queue)
		}
	}
	for _, sub := range d.wildcard {
		close(sub.queue)
	}
	d.mu.Unlock()

	d.logInfo("Closing dispatcher, draining subscriber queues")
	d.wg.Wait()
	d.logInfo("Dispatcher closed", "dropped", d.dropped.Load())
	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			d.logError("Handler panic recovered",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", info.Name,
				"panic", r,
			)
		}
	}()

	return info.Handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *eventDispatcher) logError(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}
