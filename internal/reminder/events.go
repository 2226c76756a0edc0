package reminder

import "sync"

// EventKind names what happened to a reminder.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventNegotiating EventKind = "negotiating"
	EventScheduled   EventKind = "scheduled"
	EventUnscheduled EventKind = "unscheduled"
	EventUpdated     EventKind = "updated"
	EventDeleted     EventKind = "deleted"
	EventDelivered   EventKind = "delivered"
)

// Event is published by the Coordinator as lifecycle operations progress.
type Event struct {
	Kind           EventKind
	ReminderID     int64
	State          State
	Outcome        Outcome
	NotificationID string
	Message        string
}

// Events is a typed publish/subscribe channel. A nil *Events drops
// everything published to it.
type Events struct {
	mu   sync.RWMutex
	next int
	subs []subscriber
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewEvents returns an empty event channel.
func NewEvents() *Events {
	return &Events{}
}

// Subscribe registers fn and returns a function that removes it.
func (e *Events) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber synchronously, in subscription order.
func (e *Events) Publish(ev Event) {
	if e == nil {
		return
	}

	e.mu.RLock()
	subs := append([]subscriber(nil), e.subs...)
	e.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
