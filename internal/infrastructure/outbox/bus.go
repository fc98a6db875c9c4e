// Package outbox provides the in-process event bus wiring domain events to
// local subscribers. It is the default Publisher when no broker is
// configured.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calico-commerce/storefront/internal/domain/outbox"
	"github.com/calico-commerce/storefront/internal/observability"
)

const handlerTimeout = 5 * time.Second

// Bus fans events out to handlers registered by event name. Publishing is
// non-blocking up to the queue capacity; a full queue fails the publish
// rather than stalling a request path.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]outbox.Handler

	queue chan outbox.Event
	sem   chan struct{}
	stop  chan struct{}
	wg    sync.WaitGroup

	log      observability.Logger
	failures observability.Counter
}

func NewBus(tel observability.Telemetry, queueSize, maxInflight int) *Bus {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if maxInflight <= 0 {
		maxInflight = 8
	}
	return &Bus{
		handlers: make(map[string][]outbox.Handler),
		queue:    make(chan outbox.Event, queueSize),
		sem:      make(chan struct{}, maxInflight),
		stop:     make(chan struct{}),
		log:      tel.Logger().With(observability.F("component", "outbox_bus")),
		failures: tel.Counter(observability.MEventPublishFailures),
	}
}

func (b *Bus) Subscribe(eventName string, h outbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], h)
}

func (b *Bus) Publish(ctx context.Context, e outbox.Event) error {
	select {
	case b.queue <- e:
		return nil
	case <-ctx.Done():
		b.failures.Add(1, observability.L("event", e.EventName()))
		return ctx.Err()
	default:
		b.failures.Add(1, observability.L("event", e.EventName()))
		return fmt.Errorf("outbox: queue full, dropping %s", e.EventName())
	}
}

func (b *Bus) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.stop:
				return
			case e := <-b.queue:
				b.dispatch(e)
			}
		}
	}()
}

// Stop halts dispatch and waits for in-flight handlers, up to ctx.
func (b *Bus) Stop(ctx context.Context) error {
	close(b.stop)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) dispatch(e outbox.Event) {
	b.mu.RLock()
	hs := append([]outbox.Handler(nil), b.handlers[e.EventName()]...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.sem <- struct{}{}
		b.wg.Add(1)
		go func(h outbox.Handler) {
			defer b.wg.Done()
			defer func() { <-b.sem }()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event_handler_panicked",
						observability.F("event", e.EventName()),
						observability.F("panic", fmt.Sprint(r)))
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
			defer cancel()
			if err := h(ctx, e); err != nil {
				b.log.Warn("event_handler_failed",
					observability.F("event", e.EventName()),
					observability.F("error", err.Error()))
			}
		}(h)
	}
}
