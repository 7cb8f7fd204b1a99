package events

import (
	"encoding/hex"
)

// Router is the single publishing surface handed to the executor and the
// consensus adapter. It fans events out through the bus; a nil Router is
// valid and drops everything, which keeps tests quiet.
type Router struct {
	eventBus *EventBus
}

// NewRouter creates a Router over the given bus.
func NewRouter(eventBus *EventBus) *Router {
	return &Router{eventBus: eventBus}
}

// PublishCommandEvent publishes a per-command outcome event.
func (r *Router) PublishCommandEvent(event LedgerEvent) {
	if r == nil || r.eventBus == nil {
		return
	}
	r.eventBus.Publish(event)
}

// PublishBlockCommitted publishes the commit marker for one height.
func (r *Router) PublishBlockCommitted(height uint64, root [32]byte, commands int) {
	if r == nil || r.eventBus == nil {
		return
	}
	r.eventBus.Publish(NewBlockCommitted(height, hex.EncodeToString(root[:]), commands))
}

// Subscribe subscribes to every event the node emits.
func (r *Router) Subscribe() (SubscriberID, chan LedgerEvent) {
	return r.eventBus.Subscribe()
}

// Unsubscribe removes a subscription by ID.
func (r *Router) Unsubscribe(id SubscriberID) bool {
	return r.eventBus.Unsubscribe(id)
}
