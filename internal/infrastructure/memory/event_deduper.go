package memory

import "context"

// eventDeduper is the webhook idempotency set keyed by provider event id.
type eventDeduper struct {
	s *Store
}

func (d *eventDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	_ = ctx
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if _, seen := d.s.events[eventID]; seen {
		return true, nil
	}
	d.s.events[eventID] = struct{}{}
	return false, nil
}

func (d *eventDeduper) Release(ctx context.Context, eventID string) error {
	_ = ctx
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	delete(d.s.events, eventID)
	return nil
}
