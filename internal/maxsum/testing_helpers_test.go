package maxsum

import (
	"errors"

	"planes_maxsum/internal/domain"
)

type manualClock struct {
	now int64
}

func (c *manualClock) Now() int64 { return c.now }

type outbox struct {
	sent []domain.Envelope
	err  error
}

func (o *outbox) Send(env domain.Envelope) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, env)
	return nil
}

func (o *outbox) take() []domain.Envelope {
	out := o.sent
	o.sent = nil
	return out
}

// network wires plane nodes and task nodes through one outbox and delivers
// everything that was sent in the previous round.
type network struct {
	box    *outbox
	clock  *manualClock
	planes map[domain.PlaneID]*PlaneNode
	order  []domain.PlaneID
	tasks  map[domain.TaskID]*TaskNode
}

func newNetwork() *network {
	return &network{
		box:    &outbox{},
		clock:  &manualClock{},
		planes: make(map[domain.PlaneID]*PlaneNode),
		tasks:  make(map[domain.TaskID]*TaskNode),
	}
}

func (n *network) addPlane(id domain.PlaneID, cost CostFunc) *PlaneNode {
	node := NewPlaneNode(id, cost, n.box, n.clock, nil)
	n.planes[id] = node
	n.order = append(n.order, id)
	return node
}

func (n *network) addTask(host domain.PlaneID, task domain.Task) *TaskNode {
	node := NewTaskNode(host, task, n.box, n.clock, nil)
	n.tasks[task.ID] = node
	return node
}

// connect makes every plane a neighbour of every task, in plane order.
func (n *network) connect() {
	for _, tn := range n.tasks {
		for _, id := range n.order {
			n.planes[id].AddNeighbor(tn.Task(), tn.plane)
			tn.AddNeighbor(id)
		}
	}
}

func (n *network) deliver() error {
	for _, env := range n.box.take() {
		switch msg := env.Payload.(type) {
		case TaskToPlane:
			if err := n.planes[env.To].Receive(msg); err != nil {
				return err
			}
		case PlaneToTask:
			if err := n.tasks[msg.Recipient].Receive(msg); err != nil {
				return err
			}
		default:
			return errors.New("unexpected payload")
		}
	}
	return nil
}

func (n *network) round() error {
	if err := n.deliver(); err != nil {
		return err
	}
	for _, id := range n.order {
		if err := n.planes[id].Run(); err != nil {
			return err
		}
	}
	for _, tn := range n.tasks {
		if err := tn.Run(); err != nil {
			return err
		}
	}
	n.clock.now++
	return nil
}

func costTable(costs map[domain.PlaneID]float64) CostFunc {
	return func(plane domain.PlaneID, _ domain.Task) float64 {
		return costs[plane]
	}
}
