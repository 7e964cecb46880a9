// Package observable provides a typed subscribe/notify primitive shared by the
// per-session stores.
package observable

import "sync"

// Listener receives every value published on a Subject
type Listener[T any] func(T)

// Subject fans values out to its listeners in subscription order.
// The zero value is ready to use.
type Subject[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	order     []uint64
	listeners map[uint64]Listener[T]
}

// Subscribe registers fn and returns a function that removes it again.
// Calling the returned function more than once is a no-op.
func (s *Subject[T]) Subscribe(fn Listener[T]) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listeners == nil {
		s.listeners = make(map[uint64]Listener[T])
	}
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.listeners, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Notify calls every listener synchronously with v. Listeners may
// subscribe or unsubscribe while being notified; the change applies to
// the next Notify.
func (s *Subject[T]) Notify(v T) {
	s.mu.Lock()
	fns := make([]Listener[T], 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of registered listeners
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
