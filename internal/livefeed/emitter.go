// Package livefeed adapts live platform events into the canonical shape the
// wheel consumes.
package livefeed

import (
	"sync"

	"github.com/ichi0g0y/wheel-overlay/internal/types"
)

// Handler receives the raw JSON payload of one feed event.
type Handler func(payload []byte)

// Subscription identifies a handler registered with On.
type Subscription struct {
	kind types.EventKind
	id   uint64
}

// Source is a live event feed with named channels
// (gift, like, chat, member, connect, disconnect).
type Source interface {
	On(kind types.EventKind, h Handler) Subscription
	Off(sub Subscription)
}

// Emitter is an in-process Source. Relay and EventSub sources embed it.
type Emitter struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[types.EventKind]map[uint64]Handler
}

func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[types.EventKind]map[uint64]Handler)}
}

func (e *Emitter) On(kind types.EventKind, h Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	if e.handlers[kind] == nil {
		e.handlers[kind] = make(map[uint64]Handler)
	}
	e.handlers[kind][e.nextID] = h
	return Subscription{kind: kind, id: e.nextID}
}

func (e *Emitter) Off(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.handlers[sub.kind], sub.id)
}

// Emit delivers payload to every handler of kind on the caller's goroutine.
func (e *Emitter) Emit(kind types.EventKind, payload []byte) {
	e.mu.RLock()
	hs := make([]Handler, 0, len(e.handlers[kind]))
	for _, h := range e.handlers[kind] {
		hs = append(hs, h)
	}
	e.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
}

// SubscribeAll registers h on every feed channel and returns a function that
// removes all of them.
func SubscribeAll(src Source, h func(kind types.EventKind, payload []byte)) (unsubscribe func()) {
	subs := make([]Subscription, 0, len(types.EventKinds))
	for _, kind := range types.EventKinds {
		kind := kind
		subs = append(subs, src.On(kind, func(payload []byte) { h(kind, payload) }))
	}
	return func() {
		for _, s := range subs {
			src.Off(s)
		}
	}
}
