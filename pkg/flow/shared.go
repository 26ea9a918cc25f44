package flow

import (
	"context"
	"sync"
	"time"
)

// Producer feeds values into a Shared until ctx is cancelled.
type Producer[T any] func(ctx context.Context, emit func(T))

// Shared runs its producer only while someone is subscribed. When the last
// subscriber leaves, the producer keeps running for the grace period and is
// then cancelled. The last produced value is replayed to every new
// subscriber, including ones arriving after the producer stopped.
type Shared[T any] struct {
	parent  context.Context
	grace   time.Duration
	produce Producer[T]
	cache   *State[T]

	mu          sync.Mutex
	subscribers int
	cancel      context.CancelFunc
	stopTimer   *time.Timer
	starts      int
}

// NewShared creates a Shared. The producer is never started once parent is done.
func NewShared[T any](parent context.Context, grace time.Duration, initial T, equal func(a, b T) bool, produce Producer[T]) *Shared[T] {
	return &Shared[T]{
		parent:  parent,
		grace:   grace,
		produce: produce,
		cache:   NewState(initial, equal),
	}
}

// Value returns the last produced value without starting the producer.
func (s *Shared[T]) Value() T {
	return s.cache.Value()
}

// Subscribe attaches a subscriber until ctx is done. See State.Subscribe for
// delivery semantics.
func (s *Shared[T]) Subscribe(ctx context.Context) <-chan T {
	s.acquire()
	out := s.cache.Subscribe(ctx)
	go func() {
		<-ctx.Done()
		s.release()
	}()
	return out
}

// Active reports whether the producer is currently running.
func (s *Shared[T]) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Starts returns how many times the producer has been started.
func (s *Shared[T]) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *Shared[T]) acquire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers++
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	if s.cancel != nil || s.parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.starts++
	go s.produce(ctx, func(v T) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ctx.Err() == nil {
			s.cache.Set(v)
		}
	})
}

func (s *Shared[T]) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers--
	if s.subscribers > 0 || s.cancel == nil {
		return
	}
	if s.grace <= 0 {
		s.stopLocked()
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.stopTimer != timer || s.subscribers > 0 {
			return
		}
		s.stopTimer = nil
		s.stopLocked()
	})
	s.stopTimer = timer
}

func (s *Shared[T]) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
