package maxsum

import "log/slog"

// SelectorFactor is the task-side factor: an exactly-one-of-N constraint
// over the neighbouring plane proxies.
type SelectorFactor struct {
	neighbors
	minimizer *Minimizer[Factor]
	outgoing  map[Factor]float64
	logger    *slog.Logger
}

func NewSelectorFactor(logger *slog.Logger) *SelectorFactor {
	if logger == nil {
		logger = discardLogger()
	}
	return &SelectorFactor{
		neighbors: newNeighbors(),
		minimizer: NewMinimizer[Factor](),
		outgoing:  make(map[Factor]float64),
		logger:    logger,
	}
}

func (f *SelectorFactor) Kind() Kind { return KindSelector }

func (f *SelectorFactor) AddNeighbor(n Factor) {
	f.add(n)
}

func (f *SelectorFactor) RemoveNeighbor(n Factor) bool {
	delete(f.outgoing, n)
	return f.remove(n)
}

func (f *SelectorFactor) ClearNeighbors() {
	f.clear()
	clear(f.outgoing)
}

func (f *SelectorFactor) Neighbors() []Factor {
	return append([]Factor(nil), f.list...)
}

func (f *SelectorFactor) Receive(value float64, from Factor) error {
	return f.receive(KindSelector, value, from)
}

// track feeds every reported neighbour cost into a fresh minimizer round.
// Neighbours that have not reported yet do not compete.
func (f *SelectorFactor) track() {
	f.minimizer.Reset()
	for _, n := range f.list {
		if v, ok := f.incoming[n]; ok {
			f.minimizer.Track(n, v)
		}
	}
}

// Tick computes, for every neighbour, the cheapest cost among all the
// other neighbours.
func (f *SelectorFactor) Tick() {
	f.track()
	for _, n := range f.list {
		f.outgoing[n] = f.minimizer.Complementary(n)
	}
	f.logger.Debug("selector tick", "neighbors", len(f.list), "minimizer", f.minimizer)
}

func (f *SelectorFactor) Run() error {
	for _, n := range f.list {
		if err := n.Receive(f.outgoing[n], f); err != nil {
			return err
		}
	}
	return nil
}

// Select returns the neighbour with the lowest reported cost, or nil when
// nobody has reported.
func (f *SelectorFactor) Select() Factor {
	f.track()
	best, ok := f.minimizer.Best()
	if !ok {
		return nil
	}
	return best
}
