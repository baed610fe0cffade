// Package maxsum implements the decentralized max-sum task allocation
// engine: cost and selector factors, the proxies that carry their messages
// across planes, the per-plane and per-task node wrappers and the periodic
// behavior that turns task decisions into handoffs.
package maxsum

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrInconsistent marks a violated neighbour-lifecycle invariant. It is
// fatal to the operation that returns it and must not be retried.
var ErrInconsistent = errors.New("maxsum: internal consistency fault")

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...))
}

type Kind string

const (
	KindCost     Kind = "cost"
	KindSelector Kind = "selector"
	KindProxy    Kind = "proxy"
)

// Factor is a node of the message-passing graph. The set of kinds is
// closed: CostFactor, SelectorFactor and ProxyFactor.
type Factor interface {
	Kind() Kind
	// Receive delivers a message sent to this factor by neighbour from.
	Receive(value float64, from Factor) error
	// Tick prepares the outgoing messages of the current round.
	Tick()
	// Run sends the prepared messages to every neighbour.
	Run() error
	// Select returns the neighbour this factor currently prefers, or nil.
	Select() Factor
}

// neighbors is the ordered neighbour set shared by cost and selector
// factors, together with the last message received from each neighbour.
// Order is insertion order and drives every tie-break.
type neighbors struct {
	list     []Factor
	index    map[Factor]int
	incoming map[Factor]float64
}

func newNeighbors() neighbors {
	return neighbors{
		index:    make(map[Factor]int),
		incoming: make(map[Factor]float64),
	}
}

func (n *neighbors) add(f Factor) {
	if _, ok := n.index[f]; ok {
		return
	}
	n.index[f] = len(n.list)
	n.list = append(n.list, f)
}

func (n *neighbors) remove(f Factor) bool {
	i, ok := n.index[f]
	if !ok {
		return false
	}
	copy(n.list[i:], n.list[i+1:])
	n.list[len(n.list)-1] = nil
	n.list = n.list[:len(n.list)-1]
	delete(n.index, f)
	delete(n.incoming, f)
	for j := i; j < len(n.list); j++ {
		n.index[n.list[j]] = j
	}
	return true
}

func (n *neighbors) clear() {
	clear(n.list)
	n.list = n.list[:0]
	clear(n.index)
	clear(n.incoming)
}

func (n *neighbors) has(f Factor) bool {
	_, ok := n.index[f]
	return ok
}

func (n *neighbors) receive(kind Kind, value float64, from Factor) error {
	if !n.has(from) {
		return inconsistent("%s factor received a message from a non-neighbour", kind)
	}
	n.incoming[from] = value
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
