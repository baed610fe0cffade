package inproc

import (
	"errors"
	"sync"

	"planes_maxsum/internal/domain"
)

var (
	ErrAgentNotRegistered = errors.New("agent is not registered in bus")
	ErrAgentQueueFull     = errors.New("agent queue is full")
)

// Bus holds one bounded mailbox per plane. Envelopes published during a
// tick stay in the mailbox until the recipient drains it at the start of
// its next tick, which gives every message exactly one tick of latency.
type Bus struct {
	mu     sync.Mutex
	boxes  map[domain.PlaneID][]domain.Envelope
	buffer int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Bus{
		boxes:  make(map[domain.PlaneID][]domain.Envelope),
		buffer: buffer,
	}
}

func (b *Bus) Register(agentID domain.PlaneID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.boxes[agentID]; ok {
		return
	}
	b.boxes[agentID] = make([]domain.Envelope, 0, 16)
}

// Unregister drops the mailbox and anything still queued in it.
func (b *Bus) Unregister(agentID domain.PlaneID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.boxes, agentID)
}

func (b *Bus) Publish(msg domain.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	box, ok := b.boxes[msg.To]
	if !ok {
		return ErrAgentNotRegistered
	}
	if len(box) >= b.buffer {
		return ErrAgentQueueFull
	}
	b.boxes[msg.To] = append(box, msg)
	return nil
}

// Drain returns the queued envelopes of agentID in arrival order and
// empties its mailbox.
func (b *Bus) Drain(agentID domain.PlaneID) ([]domain.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	box, ok := b.boxes[agentID]
	if !ok {
		return nil, ErrAgentNotRegistered
	}
	if len(box) == 0 {
		return nil, nil
	}
	b.boxes[agentID] = make([]domain.Envelope, 0, cap(box))
	return box, nil
}

// Pending returns a copy of every queued envelope, grouped by recipient in
// no particular order.
func (b *Bus) Pending() []domain.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Envelope
	for _, box := range b.boxes {
		out = append(out, box...)
	}
	return out
}
