package events

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/orris-inc/entitlements/internal/shared/goroutine"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

var (
	ErrDispatcherStopped = errors.New("event dispatcher is not running")
	ErrDispatcherRunning = errors.New("event dispatcher is already running")
	ErrQueueFull         = errors.New("event queue is full")
)

// InMemoryEventDispatcher queues events in a bounded channel and delivers
// them from one goroutine, so handlers see events in publish order. Publish
// never waits for handlers; it fails when the queue is full.
type InMemoryEventDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	queue    chan DomainEvent
	done     chan struct{}
	running  bool
	wg       sync.WaitGroup
	logger   logger.Interface
}

func NewInMemoryEventDispatcher(bufferSize int, log logger.Interface) *InMemoryEventDispatcher {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &InMemoryEventDispatcher{
		handlers: make(map[string][]EventHandler),
		queue:    make(chan DomainEvent, bufferSize),
		logger:   log,
	}
}

func (d *InMemoryEventDispatcher) Publish(event DomainEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- event:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, event.GetEventType())
	}
}

// PublishAll stops at the first event that cannot be queued.
func (d *InMemoryEventDispatcher) PublishAll(events []DomainEvent) error {
	for _, event := range events {
		if err := d.Publish(event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers handler for eventType, or for every type with AllEvents.
func (d *InMemoryEventDispatcher) Subscribe(eventType string, handler EventHandler) error {
	if eventType == "" {
		return errors.New("event type cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
	return nil
}

func (d *InMemoryEventDispatcher) Unsubscribe(eventType string, handler EventHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.handlers[eventType][:0]
	for _, h := range d.handlers[eventType] {
		if !sameHandler(h, handler) {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, eventType)
	} else {
		d.handlers[eventType] = kept
	}
	return nil
}

// sameHandler compares by identity; func-typed handlers are compared by
// their code pointer since funcs are not comparable.
func sameHandler(a, b EventHandler) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Func && vb.Kind() == reflect.Func {
		return va.Pointer() == vb.Pointer()
	}
	if !va.Type().Comparable() || !vb.Type().Comparable() {
		return false
	}
	return a == b
}

func (d *InMemoryEventDispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrDispatcherRunning
	}

	d.running = true
	d.done = make(chan struct{})
	d.wg.Add(1)
	go d.loop(d.done)
	return nil
}

// Stop delivers what is already queued, then returns.
func (d *InMemoryEventDispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	d.running = false
	close(d.done)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *InMemoryEventDispatcher) loop(done <-chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-done:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *InMemoryEventDispatcher) deliver(event DomainEvent) {
	eventType := event.GetEventType()

	d.mu.RLock()
	targets := append(append([]EventHandler(nil), d.handlers[eventType]...), d.handlers[AllEvents]...)
	d.mu.RUnlock()

	for _, h := range targets {
		if !h.CanHandle(eventType) {
			continue
		}
		err := goroutine.Protect(d.logger, "event-handler:"+eventType, func() error {
			return h.Handle(event)
		})
		if err != nil {
			d.logger.Warnw("event handler failed",
				"event_type", eventType,
				"aggregate_id", event.GetAggregateID(),
				"error", err,
			)
		}
	}
}
