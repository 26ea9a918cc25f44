// Package flow provides latest-value holders that can be observed by many
// subscribers at once.
package flow

import (
	"context"
	"sync"
)

// State holds a single value and notifies subscribers whenever it changes.
// Values equal to the current one are ignored.
type State[T any] struct {
	mu     sync.Mutex
	value  T
	equal  func(a, b T) bool
	subs   map[uint64]chan T
	nextID uint64
}

// NewState creates a State with the given initial value. A nil equal function
// treats every Set as a change.
func NewState[T any](initial T, equal func(a, b T) bool) *State[T] {
	return &State[T]{
		value: initial,
		equal: equal,
		subs:  make(map[uint64]chan T),
	}
}

// Value returns the current value.
func (s *State[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set stores v and reports whether the stored value changed.
func (s *State[T]) Set(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(v)
}

// Update atomically replaces the value with fn(current).
func (s *State[T]) Update(fn func(T) T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(fn(s.value))
}

func (s *State[T]) setLocked(v T) bool {
	if s.equal != nil && s.equal(s.value, v) {
		return false
	}
	s.value = v
	for _, ch := range s.subs {
		offer(ch, v)
	}
	return true
}

// Subscribe returns a channel that receives the current value immediately and
// every later change. Delivery is conflated: a slow reader only observes the
// most recent value. The channel is closed once ctx is done.
func (s *State[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch <- s.value
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// SubscriberCount returns the number of attached subscribers.
func (s *State[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// offer replaces whatever is buffered in ch with v. Callers hold the State
// lock, so they are the only sender.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// Equal compares comparable values.
func Equal[T comparable](a, b T) bool {
	return a == b
}

// PtrEqual compares the values behind two pointers. Two nils are equal.
func PtrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SamePtr compares pointer identity.
func SamePtr[T any](a, b *T) bool {
	return a == b
}
