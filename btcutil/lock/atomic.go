package lock

import (
	"sync/atomic"
)

// AtomicInt32 is a counter which is safe to share between goroutines.
type AtomicInt32 struct {
	i atomic.Int32
}

func (a *AtomicInt32) Load() int32 {
	return a.i.Load()
}
func (a *AtomicInt32) Store(n int32) {
	a.i.Store(n)
}

// Add returns the new value.
func (a *AtomicInt32) Add(n int32) int32 {
	return a.i.Add(n)
}

type AtomicBool struct {
	b atomic.Bool
}

func (a *AtomicBool) Load() bool {
	return a.b.Load()
}
func (a *AtomicBool) Store(b bool) {
	a.b.Store(b)
}
func (a *AtomicBool) Swap(b bool) bool {
	return a.b.Swap(b)
}
