package staging

import "go.uber.org/zap"

// EventType names a store notification
type EventType string

const (
	EventChangeAdded      EventType = "change-added"
	EventChangesDiscarded EventType = "changes-discarded"
	EventDeletionTracked  EventType = "deletion-tracked"
	EventDeletionUndone   EventType = "deletion-undone"
	EventAdditionTracked  EventType = "addition-tracked"
	EventAdditionUndone   EventType = "addition-undone"
	EventChangesCommitted EventType = "changes-committed"
)

// Event is delivered to registered listeners on store mutations
type Event struct {
	Type EventType
	Data interface{}
}

// Listener receives store events. Listeners run synchronously on the
// mutating goroutine and must not call back into the store.
type Listener func(Event)

type listenerSet struct {
	logger    *zap.Logger
	listeners map[int]Listener
	nextID    int
}

func newListenerSet(logger *zap.Logger) *listenerSet {
	return &listenerSet{
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// add registers a listener and returns its id. Callers synchronize;
// removal goes through remove under the same lock that guards notify.
func (s *listenerSet) add(l Listener) int {
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return id
}

func (s *listenerSet) remove(id int) {
	delete(s.listeners, id)
}

// notify delivers an event to every listener. A panicking listener is
// logged and skipped so one bad subscriber cannot break tracking.
func (s *listenerSet) notify(event Event) {
	for _, l := range s.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("change listener panicked",
						zap.String("event", string(event.Type)),
						zap.Any("panic", r))
				}
			}()
			l(event)
		}()
	}
}
