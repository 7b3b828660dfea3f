// Package lock provides mutexes which own the data they guard, the data is
// only reachable from inside a closure which runs with the lock held.
package lock

import (
	"sync"

	"github.com/pkt-cash/pldwallet/btcutil/er"
)

type lockable[T any] interface {
	lock() *T
	unlock()
}

/// lock

type GenMutex[T any] struct {
	name string
	m    sync.Mutex
	t    T
}

var _ lockable[any] = (*GenMutex[any])(nil)

// NewGenMutex creates a mutex guarding t. The name is for debugging.
func NewGenMutex[T any](t T, name string) GenMutex[T] {
	return GenMutex[T]{t: t, name: name}
}

func (gm *GenMutex[T]) lock() *T {
	gm.m.Lock()
	return &gm.t
}
func (gm *GenMutex[T]) unlock() {
	gm.m.Unlock()
}

func (gm *GenMutex[T]) String() string {
	return gm.name
}

// In runs f with the lock held and returns what f returns.
func (gm *GenMutex[T]) In(f func(t *T) er.R) er.R {
	return in[T](gm, f)
}

/// rwlock

type GenRwLock[T any] struct {
	name string
	m    sync.RWMutex
	t    T
}

func NewGenRwLock[T any](t T, name string) GenRwLock[T] {
	return GenRwLock[T]{t: t, name: name}
}

func (gm *GenRwLock[T]) String() string {
	return gm.name
}

/// R gets the reader "view" of an RWLock
func (gm *GenRwLock[T]) R() GenRwLockR[T] {
	return GenRwLockR[T]{gm}
}

/// W gets the writer "view" of an RWLock
func (gm *GenRwLock[T]) W() GenRwLockW[T] {
	return GenRwLockW[T]{gm}
}

type GenRwLockR[T any] struct {
	*GenRwLock[T]
}

var _ lockable[any] = GenRwLockR[any]{nil}

func (gm GenRwLockR[T]) lock() *T {
	gm.m.RLock()
	return &gm.t
}
func (gm GenRwLockR[T]) unlock() {
	gm.m.RUnlock()
}
func (gm GenRwLockR[T]) In(f func(t *T) er.R) er.R {
	return in[T](gm, f)
}

type GenRwLockW[T any] struct {
	*GenRwLock[T]
}

var _ lockable[any] = GenRwLockW[any]{nil}

func (gm GenRwLockW[T]) lock() *T {
	gm.m.Lock()
	return &gm.t
}
func (gm GenRwLockW[T]) unlock() {
	gm.m.Unlock()
}
func (gm GenRwLockW[T]) In(f func(t *T) er.R) er.R {
	return in[T](gm, f)
}

func in[T any](l lockable[T], f func(t *T) er.R) er.R {
	ret := l.lock()
	defer l.unlock()
	return f(ret)
}

/// Get copies a value out from under a lock.
/// e.g.  n := lock.Get[State](l.R(), func(s *State) int { return s.n })
func Get[T, V any](l lockable[T], f func(t *T) V) V {
	ret := l.lock()
	defer l.unlock()
	return f(ret)
}
