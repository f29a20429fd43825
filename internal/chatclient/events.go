// Package chatclient is the client side of the chat hub: connection
// lifecycle with reconnection, typed event fan-out, local conversation state
// and role-aware session orchestration.
package chatclient

import (
	"log"
	"sync"

	"github.com/tomharwin/kestrel/internal/wire"
)

// EventKind identifies a bus event.
type EventKind string

const (
	EventConnectionChanged    EventKind = "connectionChanged"
	EventMessageSent          EventKind = "messageSent"
	EventNewAdminMessage      EventKind = "newAdminMessage"
	EventNewUserMessage       EventKind = "newUserMessage"
	EventAdminReplySent       EventKind = "adminReplySent"
	EventMessagesMarkedAsRead EventKind = "messagesMarkedAsRead"
	EventUserStatusChanged    EventKind = "userStatusChanged"
	EventOnlineUsersList      EventKind = "onlineUsersList"
	EventError                EventKind = "error"
)

// Event is a tagged union: Kind says which of the remaining fields are set.
type Event struct {
	Kind EventKind

	// EventConnectionChanged
	Connected bool

	// message events
	Message *wire.ChatMessage

	// EventMessagesMarkedAsRead
	ConversationID string
	ReaderID       string

	// EventUserStatusChanged
	UserID string
	Online bool

	// EventOnlineUsersList
	UserIDs []string

	// EventError
	Err error
}

// Handler receives bus events.
type Handler func(Event)

// Subscription identifies a registered handler for removal.
type Subscription struct {
	kind EventKind
	id   uint64
}

type busEntry struct {
	id uint64
	fn Handler
}

// Bus fans events out to registered handlers. Registering the same function
// twice yields two invocations; removal is by subscription handle. Emission
// is synchronous and in registration order, and a panicking handler never
// prevents the remaining handlers from running.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[EventKind][]busEntry
	logf     func(format string, args ...any)
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventKind][]busEntry),
		logf:     log.Printf,
	}
}

// SetLogf overrides the logging function.
func (b *Bus) SetLogf(logf func(format string, args ...any)) {
	b.mu.Lock()
	b.logf = logf
	b.mu.Unlock()
}

// On registers a handler for the given kind and returns its subscription.
func (b *Bus) On(kind EventKind, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], busEntry{id: b.nextID, fn: fn})
	return Subscription{kind: kind, id: b.nextID}
}

// Off removes a handler by subscription. No-op if already removed.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[sub.kind]
	for i, e := range entries {
		if e.id == sub.id {
			b.handlers[sub.kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Emit synchronously invokes every handler registered for the event's kind,
// in registration order. A panic in one handler is logged and does not stop
// the rest.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	entries := make([]busEntry, len(b.handlers[ev.Kind]))
	copy(entries, b.handlers[ev.Kind])
	logf := b.logf
	b.mu.Unlock()

	for _, e := range entries {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logf("chatclient: %s handler panicked: %v", ev.Kind, r)
				}
			}()
			e.fn(ev)
		}()
	}
}

// Listeners returns the number of handlers registered for a kind.
func (b *Bus) Listeners(kind EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[kind])
}

// Reset drops every registered handler. Called on a manual connection stop;
// consumers must re-subscribe.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventKind][]busEntry)
}
