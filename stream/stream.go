// Package stream is a small push-based stream kernel for the library's
// reactive repositories. Producers emit whole snapshots, subscribers get a
// buffered channel where the latest value wins if they fall behind, and an
// emission carrying an error terminates the subscription.
package stream

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("stream closed")

// Event is a single emission. An Event with a non-nil Err is terminal: the
// subscription channel is closed right after it is delivered.
type Event[T any] struct {
	Data T
	Err  error
}

type Stream[T any] interface {
	// Subscribe returns a channel of emissions. The channel has capacity
	// one and is conflated, so a slow consumer always observes the most
	// recent value rather than a backlog. Cancelling ctx ends the
	// subscription and closes the channel.
	Subscribe(ctx context.Context) <-chan Event[T]
}

// broadcaster fans emissions out to any number of subscribers, replaying the
// latest event to late joiners.
type broadcaster[T any] struct {
	mu   sync.Mutex
	subs map[int]chan Event[T]
	next int
	last *Event[T]
	done bool
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{subs: map[int]chan Event[T]{}}
}

func (b *broadcaster[T]) subscribe(ctx context.Context, onDone func()) <-chan Event[T] {
	b.mu.Lock()
	ch := make(chan Event[T], 1)
	if b.last != nil {
		ch <- *b.last
	}
	id := -1
	if b.done {
		close(ch)
	} else {
		id = b.next
		b.next++
		b.subs[id] = ch
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
		if onDone != nil {
			onDone()
		}
	}()
	return ch
}

func (b *broadcaster[T]) emit(ev Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.last = &ev
	for _, ch := range b.subs {
		sendLatest(ch, ev)
	}
	if ev.Err != nil {
		b.done = true
		for id, ch := range b.subs {
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *broadcaster[T]) terminated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// sendLatest places ev in ch, displacing a stale buffered value if the
// consumer hasn't caught up. Never blocks for long and never queues
// unboundedly.
func sendLatest[T any](ch chan Event[T], ev Event[T]) {
	for {
		select {
		case ch <- ev:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Var is a settable replay-1 stream which never fails. It backs leaf signals
// like permission state and store change revisions.
type Var[T any] struct {
	bc *broadcaster[T]
}

func NewVar[T any](initial T) *Var[T] {
	v := &Var[T]{bc: newBroadcaster[T]()}
	v.bc.emit(Event[T]{Data: initial})
	return v
}

func (v *Var[T]) Set(val T) {
	v.bc.emit(Event[T]{Data: val})
}

func (v *Var[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	return v.bc.subscribe(ctx, nil)
}

// Latest returns the most recently set value without subscribing.
func (v *Var[T]) Latest() T {
	v.bc.mu.Lock()
	defer v.bc.mu.Unlock()
	return v.bc.last.Data
}

// Map derives a stream by applying f to every emission of s.
func Map[A, B any](s Stream[A], f func(A) B) Stream[B] {
	return MapErr(s, func(a A) (B, error) { return f(a), nil })
}

// MapErr is Map where the transform may fail; a failure terminates the
// derived subscription.
func MapErr[A, B any](s Stream[A], f func(A) (B, error)) Stream[B] {
	return mapped[A, B]{s: s, f: f}
}

type mapped[A, B any] struct {
	s Stream[A]
	f func(A) (B, error)
}

func (m mapped[A, B]) Subscribe(ctx context.Context) <-chan Event[B] {
	out := make(chan Event[B], 1)
	go func() {
		defer close(out)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		in := m.s.Subscribe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-in:
				if !open {
					return
				}
				if ev.Err != nil {
					sendLatest(out, Event[B]{Err: ev.Err})
					return
				}
				v, err := m.f(ev.Data)
				if err != nil {
					sendLatest(out, Event[B]{Err: err})
					return
				}
				sendLatest(out, Event[B]{Data: v})
			}
		}
	}()
	return out
}

// Forward pumps s into emit until ctx ends or s fails. It is the glue
// between a Stream and a Shared producer.
func Forward[T any](ctx context.Context, s Stream[T], emit func(T)) error {
	in := s.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-in:
			if !open {
				return nil
			}
			if ev.Err != nil {
				return ev.Err
			}
			emit(ev.Data)
		}
	}
}

// First returns the next value emitted by s. Against a replay-1 upstream
// this acts as an immediate snapshot query.
func First[T any](ctx context.Context, s Stream[T]) (T, error) {
	var zero T
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case ev, open := <-s.Subscribe(ctx):
		if !open {
			return zero, ErrClosed
		}
		if ev.Err != nil {
			return zero, ev.Err
		}
		return ev.Data, nil
	}
}
