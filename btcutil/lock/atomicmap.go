package lock

import (
	"fmt"
	"sync"
)

// AtomicMap is a typed sync.Map. The zero value is ready to use.
type AtomicMap[K comparable, V any] struct {
	m sync.Map
}

func as[T any](t any) T {
	if tt, ok := t.(T); ok {
		return tt
	}
	panic(fmt.Sprintf("AtomicMap holds [%T]", t))
}

func (am *AtomicMap[K, V]) Get(k K) (V, bool) {
	val, ok := am.m.Load(k)
	if !ok {
		var v V
		return v, false
	}
	return as[V](val), true
}

func (am *AtomicMap[K, V]) Put(k K, v V) {
	am.m.Store(k, v)
}

func (am *AtomicMap[K, V]) Delete(k K) {
	am.m.Delete(k)
}

// Update passes the current value to f, or the zero value with exists false.
// If f returns false the key is removed, otherwise the modified value is
// stored. Concurrent Updates of one key may lose writes.
func (am *AtomicMap[K, V]) Update(k K, f func(val *V, exists bool) bool) {
	var v V
	val, exists := am.m.Load(k)
	if exists {
		v = as[V](val)
	}
	if f(&v, exists) {
		am.m.Store(k, v)
	} else if exists {
		am.m.Delete(k)
	}
}

func (am *AtomicMap[K, V]) Len() int {
	n := 0
	am.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
