package maxsum

import (
	"fmt"
	"log/slog"
	"math"
)

// Minimizer tracks the two smallest (object, value) pairs seen since the
// last Reset. It lets a factor answer "best value among everyone except x"
// for each of its neighbours in O(1).
//
// State is round-scoped: Reset must be called before every round.
type Minimizer[T comparable] struct {
	values  [2]float64
	objects [2]T
	filled  [2]bool
	count   int
}

func NewMinimizer[T comparable]() *Minimizer[T] {
	m := &Minimizer[T]{}
	m.Reset()
	return m
}

func (m *Minimizer[T]) Reset() {
	var zero T
	m.values = [2]float64{math.Inf(1), math.Inf(1)}
	m.objects = [2]T{zero, zero}
	m.filled = [2]bool{}
	m.count = 0
}

// Track records value for t. An equal value never displaces an earlier one.
func (m *Minimizer[T]) Track(t T, value float64) {
	m.count++

	if value < m.values[0] {
		m.values[1], m.values[0] = m.values[0], value
		m.objects[1], m.objects[0] = m.objects[0], t
		m.filled[1], m.filled[0] = m.filled[0], true
		return
	}
	if value < m.values[1] {
		m.values[1] = value
		m.objects[1] = t
		m.filled[1] = true
	}
}

// Best returns the object with the smallest tracked value.
func (m *Minimizer[T]) Best() (T, bool) {
	return m.objects[0], m.filled[0]
}

// Complementary returns the best value excluding t. With no competing
// value it returns 0.
func (m *Minimizer[T]) Complementary(t T) float64 {
	if m.count == 0 {
		return 0
	}
	if m.filled[0] && t == m.objects[0] {
		if m.count == 1 {
			return 0
		}
		return m.values[1]
	}
	return m.values[0]
}

func (m *Minimizer[T]) Count() int {
	return m.count
}

func (m *Minimizer[T]) String() string {
	return fmt.Sprintf("Min(%g,%g)[%d]", m.values[0], m.values[1], m.count)
}

// LogValue defers formatting until a handler actually emits the record.
func (m *Minimizer[T]) LogValue() slog.Value {
	return slog.StringValue(m.String())
}
