package maxsum

import "log/slog"

// CostFactor is the plane-side factor. It holds one static potential per
// neighbouring task proxy and sends it every round.
type CostFactor struct {
	neighbors
	potentials map[Factor]float64
	logger     *slog.Logger
}

func NewCostFactor(logger *slog.Logger) *CostFactor {
	if logger == nil {
		logger = discardLogger()
	}
	return &CostFactor{
		neighbors:  newNeighbors(),
		potentials: make(map[Factor]float64),
		logger:     logger,
	}
}

func (f *CostFactor) Kind() Kind { return KindCost }

func (f *CostFactor) AddNeighbor(n Factor) {
	f.add(n)
}

// RemoveNeighbor drops n together with its potential.
func (f *CostFactor) RemoveNeighbor(n Factor) bool {
	delete(f.potentials, n)
	return f.remove(n)
}

func (f *CostFactor) ClearNeighbors() {
	f.clear()
	f.ClearPotentials()
}

func (f *CostFactor) Neighbors() []Factor {
	return append([]Factor(nil), f.list...)
}

func (f *CostFactor) SetPotential(n Factor, cost float64) {
	f.potentials[n] = cost
}

func (f *CostFactor) Potential(n Factor) (float64, bool) {
	v, ok := f.potentials[n]
	return v, ok
}

func (f *CostFactor) RemovePotential(n Factor) {
	delete(f.potentials, n)
}

func (f *CostFactor) ClearPotentials() {
	clear(f.potentials)
}

func (f *CostFactor) Receive(value float64, from Factor) error {
	return f.receive(KindCost, value, from)
}

// Tick has nothing to prepare: potentials are static.
func (f *CostFactor) Tick() {}

func (f *CostFactor) Run() error {
	for _, n := range f.list {
		cost, ok := f.potentials[n]
		if !ok {
			return inconsistent("cost factor has no potential for neighbour %v", n)
		}
		if err := n.Receive(cost, f); err != nil {
			return err
		}
	}
	return nil
}

// Select returns the neighbour for which this plane's potential beats the
// best alternative by the widest margin, using the complementary minima
// received from the task side. Neighbours that have not reported yet are
// skipped.
func (f *CostFactor) Select() Factor {
	var best Factor
	bestMargin := 0.0
	for _, n := range f.list {
		alt, ok := f.incoming[n]
		if !ok {
			continue
		}
		margin := f.potentials[n] - alt
		if best == nil || margin < bestMargin {
			best, bestMargin = n, margin
		}
	}
	return best
}
