package script

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunnerPoolReusesReturnedRunners(t *testing.T) {
	// setup
	var created atomic.Int32
	pool := NewRunnerPool(t.Context(), func() *int {
		n := int(created.Add(1))
		return &n
	}, 2, 1)

	// when
	first := pool.Borrow()
	pool.Return(first)
	second := pool.Borrow()

	// then
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), created.Load())
}

func TestRunnerPoolGrowsUpToMax(t *testing.T) {
	// setup
	pool := NewRunnerPool(t.Context(), func() *int { return new(int) }, 2, 0)

	// when
	a := pool.Borrow()
	b := pool.Borrow()

	// then
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, pool.Size())

	done := make(chan *int)
	go func() { done <- pool.Borrow() }()
	pool.Return(a)
	assert.Same(t, a, <-done)
	assert.Equal(t, 2, pool.Size())
}

func TestRunnerPoolShrinksToMin(t *testing.T) {
	// setup
	pool := NewRunnerPool(t.Context(), func() *int { return new(int) }, 3, 1)
	runners := []*int{pool.Borrow(), pool.Borrow(), pool.Borrow()}
	for _, r := range runners {
		pool.Return(r)
	}

	// when
	pool.shrink()

	// then
	assert.Equal(t, 1, pool.Size())
}

func TestRunnerPoolRejectsInvertedBounds(t *testing.T) {
	assert.Panics(t, func() {
		NewRunnerPool(t.Context(), func() *int { return new(int) }, 1, 2)
	})
}
