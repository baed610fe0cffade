package maxsum

// neighborFactor is the part of a cost or selector factor a node needs to
// keep the factor's neighbour set in step with its proxy registry.
type neighborFactor interface {
	AddNeighbor(n Factor)
	RemoveNeighbor(n Factor) bool
	ClearNeighbors()
}

// registry maps logical neighbours to their proxies. Every mutation updates
// the map and the factor together, so map membership always mirrors the
// factor's neighbour set.
type registry[K comparable, P Factor] struct {
	factor  neighborFactor
	proxies map[K]P
	order   []K
}

func newRegistry[K comparable, P Factor](factor neighborFactor) *registry[K, P] {
	return &registry[K, P]{
		factor:  factor,
		proxies: make(map[K]P),
	}
}

func (r *registry[K, P]) add(key K, proxy P) {
	if old, ok := r.proxies[key]; ok {
		r.factor.RemoveNeighbor(old)
	} else {
		r.order = append(r.order, key)
	}
	r.proxies[key] = proxy
	r.factor.AddNeighbor(proxy)
}

func (r *registry[K, P]) remove(key K) bool {
	proxy, ok := r.proxies[key]
	if !ok {
		return false
	}
	delete(r.proxies, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.factor.RemoveNeighbor(proxy)
	return true
}

func (r *registry[K, P]) clear() {
	clear(r.proxies)
	r.order = r.order[:0]
	r.factor.ClearNeighbors()
}

func (r *registry[K, P]) get(key K) (P, bool) {
	p, ok := r.proxies[key]
	return p, ok
}

func (r *registry[K, P]) keys() []K {
	return append([]K(nil), r.order...)
}

func (r *registry[K, P]) size() int {
	return len(r.proxies)
}
