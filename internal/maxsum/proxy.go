package maxsum

import (
	"fmt"

	"github.com/google/uuid"

	"planes_maxsum/internal/domain"
)

// Message is a max-sum message between two logical nodes. Sender is the
// logical node that produced it, not the plane that carried it, because
// many proxies share one plane.
type Message[S, R comparable] struct {
	Sender    S       `json:"sender"`
	Recipient R       `json:"recipient"`
	Value     float64 `json:"value"`
}

// Sender is the agent-to-agent send primitive. The envelope already
// carries its resolved recipient.
type Sender interface {
	Send(env domain.Envelope) error
}

// Clock reports the current simulation tick.
type Clock interface {
	Now() int64
}

// ProxyFactor stands in, on the local plane, for a factor living on a
// remote plane. Messages from the local factor leave as a Message tagged
// with the local logical node; messages arriving from the network are fed
// to the local factor as if the proxy had sent them.
type ProxyFactor[L, R comparable] struct {
	from        L
	to          R
	localAgent  domain.PlaneID
	remoteAgent domain.PlaneID
	local       Factor
	sender      Sender
	clock       Clock
}

func NewProxyFactor[L, R comparable](from L, to R, localAgent, remoteAgent domain.PlaneID, local Factor, sender Sender, clock Clock) *ProxyFactor[L, R] {
	return &ProxyFactor[L, R]{
		from:        from,
		to:          to,
		localAgent:  localAgent,
		remoteAgent: remoteAgent,
		local:       local,
		sender:      sender,
		clock:       clock,
	}
}

func (p *ProxyFactor[L, R]) Kind() Kind { return KindProxy }

func (p *ProxyFactor[L, R]) From() L { return p.from }

func (p *ProxyFactor[L, R]) To() R { return p.to }

func (p *ProxyFactor[L, R]) RemoteAgent() domain.PlaneID { return p.remoteAgent }

// Receive is called by the local factor: the value leaves for the remote
// plane.
func (p *ProxyFactor[L, R]) Receive(value float64, from Factor) error {
	if from != p.local {
		return inconsistent("proxy %v->%v received a message from a foreign factor", p.from, p.to)
	}
	var tick int64
	if p.clock != nil {
		tick = p.clock.Now()
	}
	env := domain.Envelope{
		ID:   uuid.NewString(),
		From: p.localAgent,
		To:   p.remoteAgent,
		Tick: tick,
		Payload: Message[L, R]{
			Sender:    p.from,
			Recipient: p.to,
			Value:     value,
		},
	}
	if err := p.sender.Send(env); err != nil {
		return fmt.Errorf("send %v->%v: %w", p.from, p.to, err)
	}
	return nil
}

// Deliver hands a message that arrived from the remote logical node to the
// local factor.
func (p *ProxyFactor[L, R]) Deliver(msg Message[R, L]) error {
	if msg.Sender != p.to {
		return inconsistent("proxy %v->%v got a message from %v", p.from, p.to, msg.Sender)
	}
	return p.local.Receive(msg.Value, p)
}

func (p *ProxyFactor[L, R]) Tick() {}

func (p *ProxyFactor[L, R]) Run() error { return nil }

func (p *ProxyFactor[L, R]) Select() Factor { return nil }

func (p *ProxyFactor[L, R]) String() string {
	return fmt.Sprintf("Proxy[%v->%v@%s]", p.from, p.to, p.remoteAgent)
}
