package maxsum

import (
	"log/slog"

	"planes_maxsum/internal/domain"
)

// CostFunc is the plane's static cost to serve a task.
type CostFunc func(plane domain.PlaneID, task domain.Task) float64

type (
	// PlaneProxy stands for a remote task node on the plane side.
	PlaneProxy = ProxyFactor[domain.PlaneID, domain.TaskID]
	// TaskProxy stands for a remote plane node on the task side.
	TaskProxy = ProxyFactor[domain.TaskID, domain.PlaneID]

	// TaskToPlane carries a task's complementary minimum to a plane.
	TaskToPlane = Message[domain.TaskID, domain.PlaneID]
	// PlaneToTask carries a plane's potential to a task.
	PlaneToTask = Message[domain.PlaneID, domain.TaskID]
)

// PlaneNode binds a plane to its CostFactor and keeps one proxy per
// neighbouring task.
type PlaneNode struct {
	plane   domain.PlaneID
	factor  *CostFactor
	proxies *registry[domain.TaskID, *PlaneProxy]
	cost    CostFunc
	sender  Sender
	clock   Clock
	logger  *slog.Logger
}

func NewPlaneNode(plane domain.PlaneID, cost CostFunc, sender Sender, clock Clock, logger *slog.Logger) *PlaneNode {
	if logger == nil {
		logger = discardLogger()
	}
	factor := NewCostFactor(logger)
	return &PlaneNode{
		plane:   plane,
		factor:  factor,
		proxies: newRegistry[domain.TaskID, *PlaneProxy](factor),
		cost:    cost,
		sender:  sender,
		clock:   clock,
		logger:  logger,
	}
}

// AddNeighbor links the plane to task t, whose node lives on plane
// location, and seeds the potential from the cost function.
func (n *PlaneNode) AddNeighbor(t domain.Task, location domain.PlaneID) {
	proxy := NewProxyFactor(n.plane, t.ID, n.plane, location, Factor(n.factor), n.sender, n.clock)
	n.proxies.add(t.ID, proxy)
	n.factor.SetPotential(proxy, n.cost(n.plane, t))
}

// RemoveNeighbor drops the proxy for task and its potential.
func (n *PlaneNode) RemoveNeighbor(task domain.TaskID) bool {
	return n.proxies.remove(task)
}

func (n *PlaneNode) ClearNeighbors() {
	n.proxies.clear()
}

// Neighbor returns the plane hosting task's node, as known to this plane.
func (n *PlaneNode) Neighbor(task domain.TaskID) (domain.PlaneID, bool) {
	p, ok := n.proxies.get(task)
	if !ok {
		return "", false
	}
	return p.RemoteAgent(), true
}

func (n *PlaneNode) Neighbors() []domain.TaskID {
	return n.proxies.keys()
}

func (n *PlaneNode) Factor() *CostFactor {
	return n.factor
}

// Receive routes msg to the proxy of its logical sender.
func (n *PlaneNode) Receive(msg TaskToPlane) error {
	proxy, ok := n.proxies.get(msg.Sender)
	if !ok {
		return inconsistent("plane %s has no proxy for task %s", n.plane, msg.Sender)
	}
	return proxy.Deliver(msg)
}

func (n *PlaneNode) Run() error {
	n.factor.Tick()
	return n.factor.Run()
}

// Preferred returns the task this plane is most clearly the best server
// for, if any task has reported.
func (n *PlaneNode) Preferred() (domain.TaskID, bool) {
	choice := n.factor.Select()
	if choice == nil {
		return "", false
	}
	p, ok := choice.(*PlaneProxy)
	if !ok {
		return "", false
	}
	return p.To(), true
}

// TaskNode binds a task to its SelectorFactor and keeps one proxy per
// candidate plane.
type TaskNode struct {
	task    domain.Task
	plane   domain.PlaneID
	factor  *SelectorFactor
	proxies *registry[domain.PlaneID, *TaskProxy]
	sender  Sender
	clock   Clock
	logger  *slog.Logger
}

// NewTaskNode creates the node of task hosted on plane.
func NewTaskNode(plane domain.PlaneID, task domain.Task, sender Sender, clock Clock, logger *slog.Logger) *TaskNode {
	if logger == nil {
		logger = discardLogger()
	}
	factor := NewSelectorFactor(logger)
	return &TaskNode{
		task:    task,
		plane:   plane,
		factor:  factor,
		proxies: newRegistry[domain.PlaneID, *TaskProxy](factor),
		sender:  sender,
		clock:   clock,
		logger:  logger,
	}
}

func (n *TaskNode) Task() domain.Task {
	return n.task
}

// AddNeighbor makes remote a candidate plane for this task.
func (n *TaskNode) AddNeighbor(remote domain.PlaneID) {
	proxy := NewProxyFactor(n.task.ID, remote, n.plane, remote, Factor(n.factor), n.sender, n.clock)
	n.proxies.add(remote, proxy)
}

func (n *TaskNode) RemoveNeighbor(remote domain.PlaneID) bool {
	return n.proxies.remove(remote)
}

func (n *TaskNode) ClearNeighbors() {
	n.proxies.clear()
}

func (n *TaskNode) Neighbors() []domain.PlaneID {
	return n.proxies.keys()
}

func (n *TaskNode) Factor() *SelectorFactor {
	return n.factor
}

func (n *TaskNode) Receive(msg PlaneToTask) error {
	proxy, ok := n.proxies.get(msg.Sender)
	if !ok {
		return inconsistent("task %s has no proxy for plane %s", n.task.ID, msg.Sender)
	}
	return proxy.Deliver(msg)
}

func (n *TaskNode) Run() error {
	n.factor.Tick()
	return n.factor.Run()
}

// MakeDecision returns the plane currently believed cheapest for the task.
// ok is false when no candidate has reported yet.
func (n *TaskNode) MakeDecision() (plane domain.PlaneID, ok bool, err error) {
	choice := n.factor.Select()
	if choice == nil {
		return "", false, nil
	}
	proxy, isProxy := choice.(*TaskProxy)
	if !isProxy {
		return "", false, inconsistent("task %s selected a %s factor instead of a proxy", n.task.ID, choice.Kind())
	}
	return proxy.To(), true, nil
}

func (n *TaskNode) String() string {
	return "TaskNode[" + string(n.task.ID) + "@" + string(n.plane) + "]"
}
