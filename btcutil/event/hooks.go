package event

import (
	"sync"

	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/lock"
)

type hookEntry[T any] struct {
	id uint64
	f  func(T)
}

type hooksMut[T any] struct {
	nextId  uint64
	entries []hookEntry[T]
}

// Hooks is a registry of callbacks which are invoked synchronously, in
// registration order, on the goroutine which calls Fire.
// Unlike an Emitter, a hook sees every event in the order it was fired.
type Hooks[T any] struct {
	m lock.GenMutex[hooksMut[T]]
}

func NewHooks[T any](name string) Hooks[T] {
	return Hooks[T]{m: lock.NewGenMutex(hooksMut[T]{}, name)}
}

// Hook is the subscription handle returned by Hooks.Add.
type Hook struct {
	once    sync.Once
	release func()
}

// Release unregisters the hook. It is safe to call more than once.
func (h *Hook) Release() {
	h.once.Do(h.release)
}

// Add registers f.
func (hs *Hooks[T]) Add(f func(T)) *Hook {
	var id uint64
	_ = hs.m.In(func(m *hooksMut[T]) er.R {
		m.nextId++
		id = m.nextId
		m.entries = append(m.entries, hookEntry[T]{id: id, f: f})
		return nil
	})
	return &Hook{release: func() {
		_ = hs.m.In(func(m *hooksMut[T]) er.R {
			for i, e := range m.entries {
				if e.id == id {
					m.entries = append(m.entries[:i:i], m.entries[i+1:]...)
					break
				}
			}
			return nil
		})
	}}
}

// Fire calls every registered hook with t. Hooks are called without the
// registry lock held so they may Add or Release hooks.
func (hs *Hooks[T]) Fire(t T) {
	var fs []func(T)
	_ = hs.m.In(func(m *hooksMut[T]) er.R {
		fs = make([]func(T), 0, len(m.entries))
		for _, e := range m.entries {
			fs = append(fs, e.f)
		}
		return nil
	})
	for _, f := range fs {
		f(t)
	}
}

// Len is the number of registered hooks.
func (hs *Hooks[T]) Len() (n int) {
	_ = hs.m.In(func(m *hooksMut[T]) er.R {
		n = len(m.entries)
		return nil
	})
	return
}
