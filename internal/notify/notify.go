// Package notify provides synchronous, ordered observer lists.
//
// Callbacks run on the goroutine that calls Notify, in subscription order.
// service.EventBus is the asynchronous counterpart used across goroutines.
package notify

import "sync"

// Observers is a list of callbacks for values of type T. The zero value is ready to use.
type Observers[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []sub[T]
}

type sub[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns an idempotent unsubscribe func.
func (o *Observers[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, sub[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify calls every subscriber with v. Subscribers added or removed during
// Notify take effect on the next call.
func (o *Observers[T]) Notify(v T) {
	o.mu.Lock()
	subs := append([]sub[T](nil), o.subs...)
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (o *Observers[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}
