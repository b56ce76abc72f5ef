package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_DeliversInSubscriptionOrder(t *testing.T) {
	e := New[int]()
	var got []int
	e.Subscribe(func(v int) { got = append(got, v*10) })
	e.Subscribe(func(v int) { got = append(got, v*100) })

	e.Emit(1)
	e.Emit(2)

	assert.Equal(t, []int{10, 100, 20, 200}, got)
}

func TestEmitter_CancelRemovesHandler(t *testing.T) {
	e := New[string]()
	var count int
	cancel := e.Subscribe(func(string) { count++ })

	e.Emit("a")
	cancel()
	e.Emit("b")

	assert.Equal(t, 1, count)
}

func TestEmitter_CloseDropsFurtherEmits(t *testing.T) {
	e := New[struct{}]()
	var count int
	e.Subscribe(func(struct{}) { count++ })

	e.Emit(struct{}{})
	e.Close()
	e.Emit(struct{}{})

	assert.Equal(t, 1, count)

	// Subscriptions after close never fire.
	e.Subscribe(func(struct{}) { count += 100 })
	e.Emit(struct{}{})
	assert.Equal(t, 1, count)
}
