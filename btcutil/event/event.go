// Package event provides typed event emitters, per-goroutine event loops
// and synchronous hook registries.
package event

import (
	"context"
	"reflect"
	"sync"

	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/lock"
)

var Err er.ErrorType = er.NewErrorType("event.Err")

var ErrFull = Err.CodeWithDetail("ErrFull",
	"emitter out of space, event was not delivered to every handler")

type emitterMut[T any] struct {
	chans []chan *T
}

// Emitter delivers events of type T to handlers which are registered on
// event loops. Each handler has its own buffered channel.
type Emitter[T any] struct {
	m    lock.GenMutex[emitterMut[T]]
	name string
}

// NewEmitter creates a new event emitter, the type of the event data cannot be
// inferred so it must be explicitly specified, e.g. event.NewEmitter[MyObj]("my emitter")
// The name appears in errors.
func NewEmitter[T any](name string) Emitter[T] {
	return Emitter[T]{
		name: name,
		m:    lock.NewGenMutex(emitterMut[T]{}, name),
	}
}

type caseData struct {
	cb     func(v reflect.Value)
	detach func() er.R
}

// Loop is the state of one event loop goroutine.
// It must not be shared between goroutines.
type Loop struct {
	// cases is kept apart from data so it can be passed to reflect.Select as is
	cases []reflect.SelectCase
	data  []caseData
	Wg    *sync.WaitGroup
}

func (l *Loop) dropCase(i int) er.R {
	last := len(l.cases) - 1
	err := l.data[i].detach()
	l.cases[i] = l.cases[last]
	l.cases = l.cases[:last]
	l.data[i] = l.data[last]
	l.data = l.data[:last]
	return err
}

func (l *Loop) run() {
	for len(l.cases) > 0 {
		chosen, recv, recvOK := reflect.Select(l.cases)
		if !recvOK {
			// emitter was cleared
			_ = l.dropCase(chosen)
			continue
		}
		l.data[chosen].cb(recv)
	}
}

// GoWg starts a goroutine running an event loop. f registers the initial
// handlers, the loop then runs until no handlers remain. wg is done when the
// loop exits.
func GoWg(wg *sync.WaitGroup, f func(loop *Loop)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		l := Loop{Wg: wg}
		f(&l)
		l.run()
	}()
}

// Go starts a goroutine running an event loop.
func Go(f func(loop *Loop)) {
	var wg sync.WaitGroup
	GoWg(&wg, f)
}

const chanDepth = 256

// Clear detaches every handler, more handlers may register afterwards.
func (ee *Emitter[T]) Clear() er.R {
	return ee.m.In(func(em *emitterMut[T]) er.R {
		for _, c := range em.chans {
			close(c)
		}
		em.chans = nil
		return nil
	})
}

// TryEmit delivers an event without blocking. If one or more of the handler
// channels is full, those handlers miss the event and ErrFull is returned.
func (ee *Emitter[T]) TryEmit(t T) er.R {
	return ee.m.In(func(em *emitterMut[T]) er.R {
		ok := 0
		for _, c := range em.chans {
			if len(c) == cap(c) {
				continue
			}
			tt := t
			c <- &tt
			ok++
		}
		if ok < len(em.chans) {
			return ErrFull.New(ee.name, nil)
		}
		return nil
	})
}

// Emit delivers an event to every handler, waiting for space if a handler's
// channel is full. If ctx ends first, the remaining handlers miss the event
// and the context error is returned.
func (ee *Emitter[T]) Emit(ctx context.Context, t T) er.R {
	return ee.m.In(func(em *emitterMut[T]) er.R {
		for _, c := range em.chans {
			tt := t
			select {
			case c <- &tt:
			case <-ctx.Done():
				return er.E(ctx.Err())
			}
		}
		return nil
	})
}

// On registers f to be called on loop l whenever an event is emitted. It
// must be called from the loop's goroutine.
func (ee *Emitter[T]) On(l *Loop, f func(t T)) {
	ch := make(chan *T, chanDepth)
	_ = ee.m.In(func(em *emitterMut[T]) er.R {
		em.chans = append(em.chans, ch)
		return nil
	})
	l.cases = append(l.cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(ch),
	})
	l.data = append(l.data, caseData{
		cb: func(v reflect.Value) { f(*v.Interface().(*T)) },
		detach: func() er.R {
			return ee.m.In(func(em *emitterMut[T]) er.R {
				for i, c := range em.chans {
					if c == ch {
						em.chans[i] = em.chans[len(em.chans)-1]
						em.chans = em.chans[:len(em.chans)-1]
						return nil
					}
				}
				// already removed by Clear
				return nil
			})
		},
	})
}

// Quit removes every handler so that the loop exits once the current
// handler returns.
func (l *Loop) Quit() er.R {
	for i := len(l.cases) - 1; i >= 0; i-- {
		if err := l.dropCase(i); err != nil {
			return err
		}
	}
	return nil
}
