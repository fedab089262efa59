package room

import (
	"context"
	"sync"

	"github.com/intellimeet/signal-server/pkg/protocol"
)

type updateRoomsEvent struct {
	Type string `json:"type"`
}

// Notifier pushes directory-change notices to room-list listeners.
// Dispatches are coalesced: a burst of membership churn wakes the
// notify loop once.
type Notifier struct {
	mu        sync.Mutex
	listeners map[string]protocol.EnvelopeWriter
	updateCh  chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{
		listeners: make(map[string]protocol.EnvelopeWriter),
		updateCh:  make(chan struct{}, 1),
	}
}

func (n *Notifier) Listen(id string, w protocol.EnvelopeWriter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[id] = w
}

func (n *Notifier) Stop(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, id)
}

func (n *Notifier) DispatchUpdateRooms() {
	select {
	case n.updateCh <- struct{}{}:
	default:
	}
}

func (n *Notifier) getListeners() []protocol.EnvelopeWriter {
	n.mu.Lock()
	defer n.mu.Unlock()

	result := make([]protocol.EnvelopeWriter, 0, len(n.listeners))
	for _, listener := range n.listeners {
		result = append(result, listener)
	}
	return result
}

// OnUpdateRooms runs the notify loop until ctx is canceled, invoking fn
// for every listener on each coalesced dispatch.
func (n *Notifier) OnUpdateRooms(ctx context.Context, fn func(protocol.EnvelopeWriter)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.updateCh:
			for _, listener := range n.getListeners() {
				fn(listener)
			}
		}
	}
}

// UpdateRoomsEvent is the envelope the controller sends to listeners.
func UpdateRoomsEvent() any {
	return updateRoomsEvent{Type: "update-rooms"}
}
