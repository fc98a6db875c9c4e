package outbox

import "context"

// Event is any domain event with a stable name identifier.
type Event interface {
	EventName() string
}

// Handler processes one delivered event.
type Handler func(ctx context.Context, e Event) error

// Publisher hands events to interested consumers. Publishing is
// best-effort from the caller's point of view: checkout and payment flows
// commit first and publish after.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers by event name.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
