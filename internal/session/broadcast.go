package session

import "sync"

// broadcaster fans state snapshots out to subscribers. Snapshots carry the
// version they were applied at so a late delivery never rewinds listeners.
type broadcaster[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(T)
	delivered uint64
}

func (b *broadcaster[T]) subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = map[int]func(T){}
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// publish holds the broadcaster lock while calling listeners; they must not
// call back into subscribe or the unsubscribe func.
func (b *broadcaster[T]) publish(version uint64, state T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if version <= b.delivered {
		return
	}
	b.delivered = version
	for _, fn := range b.listeners {
		fn(state)
	}
}
