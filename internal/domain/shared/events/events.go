package events

import "time"

// DomainEvent is a fact raised by an aggregate (a conversation started, a
// message sent, a listing sold) and later written to the outbox.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder is embedded by aggregates to buffer their events until the
// handler that changed them drains the buffer into the outbox.
type EventRecorder struct {
	pending []DomainEvent
}

func (r *EventRecorder) Record(event DomainEvent) {
	if event != nil {
		r.pending = append(r.pending, event)
	}
}

// PendingEvents returns a copy of the buffer.
func (r *EventRecorder) PendingEvents() []DomainEvent {
	return append([]DomainEvent(nil), r.pending...)
}

func (r *EventRecorder) ClearEvents() {
	r.pending = nil
}

// Drain hands over the buffered events in the order they were raised.
func (r *EventRecorder) Drain() []DomainEvent {
	out := r.pending
	r.pending = nil
	return out
}
