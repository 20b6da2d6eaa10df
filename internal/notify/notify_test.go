package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyOrder(t *testing.T) {
	var o Observers[int]
	var got []string

	o.Subscribe(func(v int) { got = append(got, "a") })
	o.Subscribe(func(v int) { got = append(got, "b") })
	o.Notify(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	var o Observers[string]
	calls := 0

	unsub := o.Subscribe(func(string) { calls++ })
	keep := o.Subscribe(func(string) {})
	defer keep()

	o.Notify("x")
	unsub()
	unsub()
	o.Notify("y")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, o.Len())
}

func TestUnsubscribeDuringNotify(t *testing.T) {
	var o Observers[int]
	calls := 0

	var unsub func()
	unsub = o.Subscribe(func(int) {
		calls++
		unsub()
	})
	o.Notify(1)
	o.Notify(2)

	assert.Equal(t, 1, calls)
}
