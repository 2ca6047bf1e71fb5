package stream

import "context"

// Combine2 buffers the latest value from two streams and re-runs merge on
// every emission of either, once both have emitted at least once. Emissions
// therefore always reflect a consistent pairing of latest values. A failure
// in either input, or in merge itself, terminates the combined subscription.
func Combine2[A, B, C any](a Stream[A], b Stream[B], merge func(A, B) (C, error)) Stream[C] {
	return combined2[A, B, C]{a: a, b: b, merge: merge}
}

// Combine3 is Combine2 over three inputs.
func Combine3[A, B, C, D any](a Stream[A], b Stream[B], c Stream[C], merge func(A, B, C) (D, error)) Stream[D] {
	ab := Combine2(a, b, func(a A, b B) (pair[A, B], error) {
		return pair[A, B]{a: a, b: b}, nil
	})
	return Combine2(ab, c, func(p pair[A, B], c C) (D, error) {
		return merge(p.a, p.b, c)
	})
}

type pair[A, B any] struct {
	a A
	b B
}

type combined2[A, B, C any] struct {
	a     Stream[A]
	b     Stream[B]
	merge func(A, B) (C, error)
}

func (c combined2[A, B, C]) Subscribe(ctx context.Context) <-chan Event[C] {
	out := make(chan Event[C], 1)
	go func() {
		defer close(out)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		aChan := c.a.Subscribe(ctx)
		bChan := c.b.Subscribe(ctx)

		var aVal A
		var bVal B
		var aSeen, bSeen bool
		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-aChan:
				if !open {
					return
				}
				if ev.Err != nil {
					sendLatest(out, Event[C]{Err: ev.Err})
					return
				}
				aVal, aSeen = ev.Data, true
			case ev, open := <-bChan:
				if !open {
					return
				}
				if ev.Err != nil {
					sendLatest(out, Event[C]{Err: ev.Err})
					return
				}
				bVal, bSeen = ev.Data, true
			}
			if !aSeen || !bSeen {
				continue
			}
			merged, err := c.merge(aVal, bVal)
			if err != nil {
				sendLatest(out, Event[C]{Err: err})
				return
			}
			sendLatest(out, Event[C]{Data: merged})
		}
	}()
	return out
}
