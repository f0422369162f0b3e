package shutdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHooksRunInOrder(t *testing.T) {
	var order []int
	r := New()
	r.Register(func(ctx context.Context) { order = append(order, 1) })
	r.Register(func(ctx context.Context) { order = append(order, 2) })
	r.Register(func(ctx context.Context) { order = append(order, 3) })

	r.Run(time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestRunStopsAtDeadline(t *testing.T) {
	var ran []int
	r := New()
	r.Register(func(ctx context.Context) {
		ran = append(ran, 1)
		time.Sleep(20 * time.Millisecond)
	})
	r.Register(func(ctx context.Context) { ran = append(ran, 2) })

	r.Run(5 * time.Millisecond)
	assert.Equal(t, []int{1}, ran)
}
