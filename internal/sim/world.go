// Package sim drives a population of plane agents through discrete,
// barrier-synchronised ticks.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"planes_maxsum/internal/agent"
	"planes_maxsum/internal/cost"
	"planes_maxsum/internal/domain"
	"planes_maxsum/internal/maxsum"
	"planes_maxsum/internal/policy"
)

var (
	ErrUnknownPlane   = errors.New("unknown plane")
	ErrDuplicatePlane = errors.New("plane already exists")
	ErrDuplicateTask  = errors.New("task already exists")
)

type Bus interface {
	Register(agentID domain.PlaneID)
	Publish(msg domain.Envelope) error
	Drain(agentID domain.PlaneID) ([]domain.Envelope, error)
	Pending() []domain.Envelope
}

type Config struct {
	Schedule    maxsum.Schedule
	FullRefresh bool
	// Parallel runs the planes of each phase in their own goroutines.
	Parallel bool
	// Range limits plane/task links by distance. Zero means unlimited.
	Range        float64
	TickInterval time.Duration
	RunID        string
}

func (c Config) withDefaults() Config {
	// A zero schedule gets the full default. Otherwise only the period is
	// defaulted and the caller's iterations are kept.
	if c.Schedule == (maxsum.Schedule{}) {
		c.Schedule = maxsum.Schedule{StartEvery: 10, Iterations: 8}
	}
	if c.Schedule.StartEvery <= 0 {
		c.Schedule.StartEvery = 10
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	return c
}

type Option func(*World)

func WithJournal(j maxsum.Journal) Option {
	return func(w *World) { w.journal = j }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *World) { w.logger = l }
}

// World owns the planes, the task catalogue and the simulation clock.
// Mutators and Step are serialised; plane phases within a step may run
// concurrently.
type World struct {
	cfg     Config
	bus     Bus
	journal maxsum.Journal
	logger  *slog.Logger
	links   *policy.Engine
	costs   *cost.Cache

	clock tickClock

	mu        sync.Mutex
	planes    []*agent.Plane
	tasks     []domain.Task
	taskIndex map[domain.TaskID]int

	planesMu sync.RWMutex
	byID     map[domain.PlaneID]*agent.Plane
}

type tickClock struct {
	now atomic.Int64
}

func (c *tickClock) Now() int64 { return c.now.Load() }

func New(cfg Config, bus Bus, opts ...Option) (*World, error) {
	cfg = cfg.withDefaults()
	if cfg.Schedule.Iterations < 0 || cfg.Schedule.Iterations >= cfg.Schedule.StartEvery {
		return nil, fmt.Errorf("iterations %d outside [0, %d)", cfg.Schedule.Iterations, cfg.Schedule.StartEvery)
	}
	if cfg.Range < 0 {
		return nil, fmt.Errorf("negative range %v", cfg.Range)
	}
	w := &World{
		cfg:       cfg,
		bus:       bus,
		links:     policy.New(cfg.Range),
		taskIndex: make(map[domain.TaskID]int),
		byID:      make(map[domain.PlaneID]*agent.Plane),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w.costs = cost.NewCache(cost.Travel(w))
	return w, nil
}

func (w *World) RunID() string { return w.cfg.RunID }

func (w *World) Now() int64 { return w.clock.Now() }

// PlaneLocation implements cost.Locator.
func (w *World) PlaneLocation(id domain.PlaneID) (domain.Location, bool) {
	p, ok := w.plane(id)
	if !ok {
		return domain.Location{}, false
	}
	return p.Location(), true
}

func (w *World) plane(id domain.PlaneID) (*agent.Plane, bool) {
	w.planesMu.RLock()
	defer w.planesMu.RUnlock()
	p, ok := w.byID[id]
	return p, ok
}

func (w *World) Plane(id domain.PlaneID) (*agent.Plane, bool) {
	return w.plane(id)
}

func (w *World) AddPlane(id domain.PlaneID, loc domain.Location) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.plane(id); ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlane, id)
	}
	w.bus.Register(id)
	p := agent.NewPlane(id, loc, w.bus, &w.clock, w.costs.Cost, w.journal, agent.Config{
		Schedule:    w.cfg.Schedule,
		FullRefresh: w.cfg.FullRefresh,
		RunID:       w.cfg.RunID,
	}, w.logger)

	w.planesMu.Lock()
	w.byID[id] = p
	w.planesMu.Unlock()
	w.planes = append(w.planes, p)
	w.logger.Info("plane added", "plane", id, "x", loc.X, "y", loc.Y)
	return nil
}

// AddTask gives task to owner. It joins the graph at the next period start.
func (w *World) AddTask(task domain.Task, owner domain.PlaneID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.taskIndex[task.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	p, ok := w.plane(owner)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlane, owner)
	}
	w.taskIndex[task.ID] = len(w.tasks)
	w.tasks = append(w.tasks, task)
	p.AddTask(task)
	w.logger.Info("task added", "task", task.ID, "owner", owner)
	return nil
}

func (w *World) MovePlane(id domain.PlaneID, loc domain.Location) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.plane(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlane, id)
	}
	p.MoveTo(loc)
	w.costs.Forget(id)
	return nil
}

func (w *World) SetInactive(id domain.PlaneID, inactive bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.plane(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlane, id)
	}
	p.SetInactive(inactive)
	return nil
}

// Step runs one tick: every plane's before phase, the graph refresh at a
// period start, every plane's after phase, then advances the clock.
func (w *World) Step(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	now := w.clock.Now()
	if err := w.phase(func(p *agent.Plane) error { return p.BeforeMessages(ctx) }); err != nil {
		return fmt.Errorf("tick %d: %w", now, err)
	}
	if w.cfg.Schedule.RefreshTick(now) {
		view := w.view()
		_ = w.phase(func(p *agent.Plane) error {
			p.Refresh(ctx, view, w.links)
			return nil
		})
	}
	if err := w.phase(func(p *agent.Plane) error { return p.AfterMessages(ctx) }); err != nil {
		return fmt.Errorf("tick %d: %w", now, err)
	}
	w.clock.now.Add(1)
	return nil
}

func (w *World) phase(fn func(p *agent.Plane) error) error {
	if !w.cfg.Parallel {
		for _, p := range w.planes {
			if err := fn(p); err != nil {
				return fmt.Errorf("plane %s: %w", p.ID(), err)
			}
		}
		return nil
	}

	errs := make([]error, len(w.planes))
	var wg sync.WaitGroup
	for i, p := range w.planes {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(p); err != nil {
				errs[i] = fmt.Errorf("plane %s: %w", p.ID(), err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// view snapshots positions, activity and task hosts. Tasks in transit are
// not part of it.
func (w *World) view() policy.View {
	hosts := make(map[domain.TaskID]domain.PlaneID, len(w.tasks))
	v := policy.View{Planes: make([]policy.PlaneState, 0, len(w.planes))}
	for _, p := range w.planes {
		v.Planes = append(v.Planes, p.State())
		for _, t := range p.Tasks() {
			hosts[t.ID] = p.ID()
		}
	}
	for _, t := range w.tasks {
		if host, ok := hosts[t.ID]; ok {
			v.Tasks = append(v.Tasks, policy.TaskState{Task: t, Host: host})
		}
	}
	return v
}

// Run steps the world ticks times. With a tick interval it is paced by a
// ticker, otherwise it runs as fast as it can.
func (w *World) Run(ctx context.Context, ticks int64) error {
	w.logger.Info("simulation started", "run", w.cfg.RunID, "ticks", ticks, "planes", len(w.planes), "tasks", len(w.tasks))
	if w.cfg.TickInterval <= 0 {
		for i := int64(0); i < ticks; i++ {
			if err := w.Step(ctx); err != nil {
				return err
			}
		}
		w.logger.Info("simulation finished", "run", w.cfg.RunID, "tick", w.Now())
		return nil
	}

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()
	for i := int64(0); i < ticks; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Step(ctx); err != nil {
				return err
			}
			i++
		}
	}
	w.logger.Info("simulation finished", "run", w.cfg.RunID, "tick", w.Now())
	return nil
}

type Holder struct {
	Plane domain.PlaneID
	// InTransit marks a HandTask envelope addressed to Plane that has not
	// been incorporated yet.
	InTransit bool
}

// Census lists every holder of every task. Outside of a step each task
// has exactly one.
func (w *World) Census() map[domain.TaskID][]Holder {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[domain.TaskID][]Holder, len(w.tasks))
	for _, t := range w.tasks {
		out[t.ID] = nil
	}
	for _, p := range w.planes {
		for _, t := range p.Tasks() {
			out[t.ID] = append(out[t.ID], Holder{Plane: p.ID()})
		}
	}
	for _, env := range w.bus.Pending() {
		if msg, ok := env.Payload.(domain.HandTask); ok {
			out[msg.Task.ID] = append(out[msg.Task.ID], Holder{Plane: env.To, InTransit: true})
		}
	}
	return out
}

// Assignments returns the owning plane of every task in task order. Tasks
// in transit are omitted.
func (w *World) Assignments() []domain.Assignment {
	w.mu.Lock()
	defer w.mu.Unlock()

	owners := make(map[domain.TaskID]domain.PlaneID, len(w.tasks))
	for _, p := range w.planes {
		for _, t := range p.Tasks() {
			owners[t.ID] = p.ID()
		}
	}
	out := make([]domain.Assignment, 0, len(w.tasks))
	for _, t := range w.tasks {
		owner, ok := owners[t.ID]
		if !ok {
			continue
		}
		out = append(out, domain.Assignment{TaskID: t.ID, PlaneID: owner, Cost: w.costs.Cost(owner, t)})
	}
	return out
}

func TotalCost(assignments []domain.Assignment) float64 {
	var total float64
	for _, a := range assignments {
		total += a.Cost
	}
	return total
}
