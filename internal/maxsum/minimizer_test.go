package maxsum

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimizerEmpty(t *testing.T) {
	m := NewMinimizer[string]()

	_, ok := m.Best()
	assert.False(t, ok)
	assert.Equal(t, 0.0, m.Complementary("a"))
	assert.Equal(t, 0, m.Count())
}

func TestMinimizerTieKeepsFirstSeen(t *testing.T) {
	m := NewMinimizer[string]()
	m.Track("A", 5)
	m.Track("B", 2)
	m.Track("C", 2)

	best, ok := m.Best()
	require.True(t, ok)
	assert.Equal(t, "B", best)
	assert.Equal(t, 2.0, m.Complementary("B"))
	assert.Equal(t, 2.0, m.Complementary("A"))
	assert.Equal(t, 2.0, m.Complementary("C"))
}

func TestMinimizerSingleValue(t *testing.T) {
	m := NewMinimizer[string]()
	m.Track("A", 3)

	assert.Equal(t, 0.0, m.Complementary("A"))
	// Another object sees the only tracked value.
	assert.Equal(t, 3.0, m.Complementary("Z"))
}

func TestMinimizerSecondSlotReplacement(t *testing.T) {
	m := NewMinimizer[string]()
	m.Track("A", 1)
	m.Track("B", 9)
	m.Track("C", 4)
	m.Track("D", 6)

	best, _ := m.Best()
	assert.Equal(t, "A", best)
	assert.Equal(t, 4.0, m.Complementary("A"))
	assert.Equal(t, 1.0, m.Complementary("B"))
	assert.Equal(t, 1.0, m.Complementary("D"))
	assert.Equal(t, 4, m.Count())
}

func TestMinimizerResetIsRoundScoped(t *testing.T) {
	m := NewMinimizer[string]()
	m.Track("A", 1)
	m.Track("B", 2)

	m.Reset()
	m.Track("C", 7)

	best, ok := m.Best()
	require.True(t, ok)
	assert.Equal(t, "C", best)
	assert.Equal(t, 0.0, m.Complementary("C"))
	assert.Equal(t, 7.0, m.Complementary("A"))
	assert.Equal(t, 1, m.Count())
}

func TestMinimizerMatchesBruteForce(t *testing.T) {
	values := []float64{8, 3, 3, 12, -1, 5, -1, 0}
	objects := []int{0, 1, 2, 3, 4, 5, 6, 7}

	m := NewMinimizer[int]()
	for i, v := range values {
		m.Track(objects[i], v)
	}

	best, _ := m.Best()
	assert.Equal(t, 4, best, "first of the two -1 values wins")

	for i := range objects {
		want := 0.0
		found := false
		for j, v := range values {
			if j == i {
				continue
			}
			if !found || v < want {
				want, found = v, true
			}
		}
		if objects[i] != best {
			want = values[best]
		}
		assert.Equal(t, want, m.Complementary(objects[i]), "object %d", objects[i])
	}
}

type captureHandler struct {
	level slog.Level
	attrs map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	r.Attrs(func(a slog.Attr) bool {
		h.attrs[a.Key] = a.Value
		return true
	})
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func TestSelectorTickLogsMinimizerLazily(t *testing.T) {
	quiet := &captureHandler{level: slog.LevelInfo, attrs: map[string]slog.Value{}}
	f := NewSelectorFactor(slog.New(quiet))
	f.Tick()
	assert.Empty(t, quiet.attrs)

	loud := &captureHandler{level: slog.LevelDebug, attrs: map[string]slog.Value{}}
	f = NewSelectorFactor(slog.New(loud))
	f.Tick()
	v, ok := loud.attrs["minimizer"]
	require.True(t, ok)
	assert.Equal(t, NewMinimizer[Factor]().String(), v.Resolve().String())
}

func TestMinimizerLogValue(t *testing.T) {
	m := NewMinimizer[string]()
	m.Track("a", 2)
	assert.Equal(t, m.String(), m.LogValue().String())
	assert.Equal(t, "Min(2,+Inf)[1]", m.LogValue().String())
}
