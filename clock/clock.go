// Package clock abstracts wall time as epoch seconds so that the usage
// scoring heuristics can be tested against a fixed point in time.
package clock

import (
	"sync/atomic"
	"time"
)

type Clock interface {
	// NowEpoch returns the current time as unix epoch seconds. Values are
	// non-decreasing between calls.
	NowEpoch() int64
}

type System struct{}

func (System) NowEpoch() int64 {
	return time.Now().Unix()
}

// Frozen is a clock stuck at a settable instant.
type Frozen struct {
	epoch atomic.Int64
}

func NewFrozen(epoch int64) *Frozen {
	f := &Frozen{}
	f.epoch.Store(epoch)
	return f
}

func (f *Frozen) NowEpoch() int64 {
	return f.epoch.Load()
}

func (f *Frozen) Set(epoch int64) {
	f.epoch.Store(epoch)
}

// Advance moves the frozen clock forward by d, truncated to seconds.
func (f *Frozen) Advance(d time.Duration) {
	f.epoch.Add(int64(d / time.Second))
}
