package stream

import (
	"context"
	"sync"
	"time"
)

// Producer feeds a Shared stream. It should emit a fresh snapshot whenever
// its inputs change and block until ctx is cancelled. A non-nil return is
// broadcast to subscribers as a terminal failure.
type Producer[T any] func(ctx context.Context, emit func(T)) error

// Shared multicasts a producer with replay of the latest value. The producer
// starts lazily with the first subscriber and keeps running for a grace
// period after the last one detaches, so a quick re-subscribe resumes from
// the replayed value instead of forcing the producer to start over.
type Shared[T any] struct {
	produce Producer[T]
	grace   time.Duration

	mu     sync.Mutex
	bc     *broadcaster[T]
	cancel context.CancelFunc
	refs   int
	timer  *time.Timer
}

func NewShared[T any](produce Producer[T], grace time.Duration) *Shared[T] {
	return &Shared[T]{produce: produce, grace: grace}
}

func (s *Shared[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// a failed producer run is terminal only for the subscriptions that
	// observed it. a new subscriber gets a fresh run.
	if s.bc == nil || s.bc.terminated() {
		s.start()
	}
	s.refs++
	return s.bc.subscribe(ctx, s.release)
}

func (s *Shared[T]) start() {
	bc := newBroadcaster[T]()
	ctx, cancel := context.WithCancel(context.Background())
	s.bc = bc
	s.cancel = cancel
	go func() {
		err := s.produce(ctx, func(v T) { bc.emit(Event[T]{Data: v}) })
		if err != nil && ctx.Err() == nil {
			bc.emit(Event[T]{Err: err})
		}
	}()
}

func (s *Shared[T]) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 {
		return
	}
	if s.grace <= 0 {
		s.stopLocked()
		return
	}
	s.timer = time.AfterFunc(s.grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.refs == 0 {
			s.stopLocked()
		}
	})
}

func (s *Shared[T]) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.bc = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
