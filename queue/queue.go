// Package queue holds the ordered list of tracks a playback session walks
// through. It knows nothing about audio, only positions.
package queue

import (
	"math/rand"
	"sync"

	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/stream"
)

// State is a snapshot of the queue. Index is -1 while the queue is empty.
type State struct {
	Items []db.Track `json:"items"`
	Index int        `json:"index"`
}

// Current returns the track at the cursor, if any.
func (s State) Current() (db.Track, bool) {
	if s.Index < 0 || s.Index >= len(s.Items) {
		return db.Track{}, false
	}
	return s.Items[s.Index], true
}

type Queue struct {
	mu    sync.Mutex
	items []db.Track
	index int
	state *stream.Var[State]
}

func New() *Queue {
	return &Queue{
		index: -1,
		state: stream.NewVar(State{Items: []db.Track{}, Index: -1}),
	}
}

// State replays the current snapshot and emits after every mutation.
func (q *Queue) State() stream.Stream[State] {
	return q.state
}

func (q *Queue) SetItems(tracks []db.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]db.Track{}, tracks...)
	q.index = -1
	if len(q.items) > 0 {
		q.index = 0
	}
	q.publish()
}

func (q *Queue) Add(tracks ...db.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, tracks...)
	if q.index < 0 && len(q.items) > 0 {
		q.index = 0
	}
	q.publish()
}

// RemoveAt drops the item at position i, ignoring out of range positions.
// The cursor stays on the same track where possible.
func (q *Queue) RemoveAt(i int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.items) {
		return
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	switch {
	case len(q.items) == 0:
		q.index = -1
	case i < q.index:
		q.index--
	case q.index >= len(q.items):
		q.index = len(q.items) - 1
	}
	q.publish()
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = []db.Track{}
	q.index = -1
	q.publish()
}

// Skip moves the cursor to position i. Out of range positions are ignored.
func (q *Queue) Skip(i int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.items) {
		return
	}
	q.index = i
	q.publish()
}

// Next advances the cursor, reporting whether there was anywhere to go.
func (q *Queue) Next() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index+1 >= len(q.items) {
		return false
	}
	q.index++
	q.publish()
	return true
}

func (q *Queue) Prev() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index <= 0 {
		return false
	}
	q.index--
	q.publish()
	return true
}

// Shuffle reorders everything after the current track, keeping the played
// part and the cursor in place.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := q.items[q.index+1:]
	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	q.publish()
}

func (q *Queue) publish() {
	items := append([]db.Track{}, q.items...)
	q.state.Set(State{Items: items, Index: q.index})
}
