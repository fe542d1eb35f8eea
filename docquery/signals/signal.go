// Package signals delivers typed events to attached observers.
package signals

import "sync"

type Observer[E any] func(E)

type entry[E any] struct {
	id       uint64
	observer Observer[E]
}

// Signal is safe for concurrent use. Observers run synchronously on the
// notifying goroutine in the order they were attached.
type Signal[E any] struct {
	mu        sync.RWMutex
	next      uint64
	observers []entry[E]
}

func New[E any]() *Signal[E] {
	return &Signal[E]{}
}

// Attach registers observer and returns a function that detaches it.
// Calling detach more than once is harmless.
func (s *Signal[E]) Attach(observer Observer[E]) (detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.observers = append(s.observers, entry[E]{id: id, observer: observer})
	return func() { s.detach(id) }
}

func (s *Signal[E]) detach(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.observers {
		if e.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Signal[E]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

func (s *Signal[E]) Notify(event E) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, e := range observers {
		e.observer(event)
	}
}
