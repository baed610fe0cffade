package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"planes_maxsum/internal/domain"
	"planes_maxsum/internal/maxsum"
	"planes_maxsum/internal/policy"
)

type Bus interface {
	Publish(msg domain.Envelope) error
	Drain(agentID domain.PlaneID) ([]domain.Envelope, error)
}

// Linker decides graph neighbourhoods from a world view.
type Linker interface {
	TasksFor(v policy.View, plane domain.PlaneID) []policy.TaskState
	PlanesFor(v policy.View, t policy.TaskState) []domain.PlaneID
}

type Config struct {
	Schedule maxsum.Schedule
	// FullRefresh clears and rebuilds every neighbourhood at each period
	// start instead of applying only the differences.
	FullRefresh bool
	RunID       string
}

// Plane is the agent hosting one PlaneNode, one TaskNode per owned task
// and the decision behavior. Its graph state is only touched by its own
// phases; location and activity may be changed by the world between ticks.
type Plane struct {
	id  domain.PlaneID
	cfg Config

	mu       sync.RWMutex
	location domain.Location
	inactive bool
	moved    bool

	tasks     []domain.Task
	taskNodes map[domain.TaskID]*maxsum.TaskNode
	node      *maxsum.PlaneNode
	behavior  *maxsum.DecideBehavior

	bus     Bus
	clock   maxsum.Clock
	journal maxsum.Journal
	logger  *slog.Logger
}

func NewPlane(
	id domain.PlaneID,
	location domain.Location,
	bus Bus,
	clock maxsum.Clock,
	cost maxsum.CostFunc,
	journal maxsum.Journal,
	cfg Config,
	logger *slog.Logger,
) *Plane {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("plane", id)
	p := &Plane{
		id:        id,
		cfg:       cfg,
		location:  location,
		taskNodes: make(map[domain.TaskID]*maxsum.TaskNode),
		bus:       bus,
		clock:     clock,
		journal:   journal,
		logger:    logger,
	}
	p.node = maxsum.NewPlaneNode(id, cost, p, clock, logger)
	p.behavior = maxsum.NewDecideBehavior(p, clock, cfg.Schedule, journal, cfg.RunID, logger)
	return p
}

func (p *Plane) ID() domain.PlaneID { return p.id }

func (p *Plane) Location() domain.Location {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.location
}

// MoveTo relocates the plane. Potentials are recomputed at the next
// period start.
func (p *Plane) MoveTo(loc domain.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = loc
	p.moved = true
}

func (p *Plane) SetInactive(inactive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inactive = inactive
}

func (p *Plane) IsInactive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inactive
}

func (p *Plane) State() policy.PlaneState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return policy.PlaneState{ID: p.id, Location: p.location, Inactive: p.inactive}
}

// Tasks returns a copy of the task list in index order.
func (p *Plane) Tasks() []domain.Task {
	return append([]domain.Task(nil), p.tasks...)
}

func (p *Plane) TaskNode(task domain.TaskID) (*maxsum.TaskNode, bool) {
	n, ok := p.taskNodes[task]
	return n, ok
}

// AddTask appends task and creates its node. The node has no candidate
// planes until the next period start.
func (p *Plane) AddTask(task domain.Task) {
	if _, ok := p.taskNodes[task.ID]; ok {
		return
	}
	p.tasks = append(p.tasks, task)
	p.taskNodes[task.ID] = maxsum.NewTaskNode(p.id, task, p, p.clock, p.logger)
}

func (p *Plane) RemoveTask(task domain.TaskID) {
	for i, t := range p.tasks {
		if t.ID == task {
			p.tasks = append(p.tasks[:i], p.tasks[i+1:]...)
			break
		}
	}
	delete(p.taskNodes, task)
}

func (p *Plane) Send(env domain.Envelope) error {
	return p.bus.Publish(env)
}

func (p *Plane) Node() *maxsum.PlaneNode {
	return p.node
}

// BeforeMessages consumes everything delivered since the previous tick.
func (p *Plane) BeforeMessages(ctx context.Context) error {
	envs, err := p.bus.Drain(p.id)
	if err != nil {
		return fmt.Errorf("drain mailbox: %w", err)
	}
	for _, env := range envs {
		if err := p.handle(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plane) handle(ctx context.Context, env domain.Envelope) error {
	switch msg := env.Payload.(type) {
	case maxsum.TaskToPlane:
		return p.node.Receive(msg)
	case maxsum.PlaneToTask:
		tn, ok := p.taskNodes[msg.Recipient]
		if !ok {
			// The task left this plane after the sender's last refresh.
			p.logger.Debug("stale message dropped", "tick", p.clock.Now(), "envelope", env.ID, "task", msg.Recipient, "from", msg.Sender)
			return nil
		}
		return tn.Receive(msg)
	case domain.HandTask:
		p.behavior.OnHandTask(ctx, env.From, msg)
		return nil
	default:
		return fmt.Errorf("plane %s: unexpected payload %T from %s", p.id, env.Payload, env.From)
	}
}

// Refresh brings the plane node and every hosted task node in line with
// the neighbourhoods of view.
func (p *Plane) Refresh(ctx context.Context, view policy.View, links Linker) {
	p.mu.Lock()
	inactive := p.inactive
	moved := p.moved
	p.moved = false
	p.mu.Unlock()

	if inactive {
		p.node.ClearNeighbors()
		for _, t := range p.tasks {
			p.taskNodes[t.ID].ClearNeighbors()
		}
		p.logger.Debug("graph cleared", "tick", p.clock.Now())
		return
	}

	linked := links.TasksFor(view, p.id)
	if p.cfg.FullRefresh || moved {
		p.node.ClearNeighbors()
		for _, ts := range linked {
			p.node.AddNeighbor(ts.Task, ts.Host)
		}
	} else {
		refreshPlaneNode(p.node, linked)
	}

	hosted := 0
	for _, ts := range view.Tasks {
		if ts.Host != p.id {
			continue
		}
		tn, ok := p.taskNodes[ts.Task.ID]
		if !ok {
			continue
		}
		hosted++
		planes := links.PlanesFor(view, ts)
		if p.cfg.FullRefresh {
			tn.ClearNeighbors()
			for _, id := range planes {
				tn.AddNeighbor(id)
			}
			continue
		}
		refreshTaskNode(tn, planes)
	}

	now := p.clock.Now()
	p.logger.Debug("graph refreshed", "tick", now, "tasks", len(linked), "hosted", hosted)
	p.record(ctx, domain.DecisionLog{
		Tick:    now,
		Action:  domain.ActionGraphRefreshed,
		Reason:  "period start",
		Payload: mustJSON(map[string]any{"linked": len(linked), "hosted": hosted}),
	})
}

func (p *Plane) record(ctx context.Context, entry domain.DecisionLog) {
	if p.journal == nil {
		return
	}
	entry.RunID = p.cfg.RunID
	entry.PlaneID = p.id
	if err := p.journal.LogDecision(ctx, entry); err != nil {
		p.logger.Warn("journal decision failed", "action", entry.Action, "error", err)
	}
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func refreshPlaneNode(node *maxsum.PlaneNode, linked []policy.TaskState) {
	want := make(map[domain.TaskID]domain.PlaneID, len(linked))
	for _, ts := range linked {
		want[ts.Task.ID] = ts.Host
	}
	for _, id := range node.Neighbors() {
		host, _ := node.Neighbor(id)
		if w, ok := want[id]; !ok || w != host {
			node.RemoveNeighbor(id)
		}
	}
	for _, ts := range linked {
		if host, ok := node.Neighbor(ts.Task.ID); !ok || host != ts.Host {
			node.AddNeighbor(ts.Task, ts.Host)
		}
	}
}

func refreshTaskNode(tn *maxsum.TaskNode, planes []domain.PlaneID) {
	want := make(map[domain.PlaneID]bool, len(planes))
	for _, id := range planes {
		want[id] = true
	}
	current := make(map[domain.PlaneID]bool)
	for _, id := range tn.Neighbors() {
		current[id] = true
		if !want[id] {
			tn.RemoveNeighbor(id)
		}
	}
	for _, id := range planes {
		if !current[id] {
			tn.AddNeighbor(id)
		}
	}
}

// AfterMessages runs the plane node, every task node in task order, then
// the decision behavior.
func (p *Plane) AfterMessages(ctx context.Context) error {
	if err := p.node.Run(); err != nil {
		return fmt.Errorf("plane node: %w", err)
	}
	for _, t := range p.tasks {
		if err := p.taskNodes[t.ID].Run(); err != nil {
			return fmt.Errorf("task node %s: %w", t.ID, err)
		}
	}
	return p.behavior.AfterMessages(ctx)
}
