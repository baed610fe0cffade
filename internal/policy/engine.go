package policy

import "planes_maxsum/internal/domain"

type PlaneState struct {
	ID       domain.PlaneID
	Location domain.Location
	Inactive bool
}

type TaskState struct {
	Task domain.Task
	Host domain.PlaneID
}

// View is the world snapshot a refresh is computed from. Order of both
// slices is the world's insertion order.
type View struct {
	Planes []PlaneState
	Tasks  []TaskState
}

func (v View) plane(id domain.PlaneID) (PlaneState, bool) {
	for _, p := range v.Planes {
		if p.ID == id {
			return p, true
		}
	}
	return PlaneState{}, false
}

// Engine decides which planes and tasks are graph neighbours. The
// relation is symmetric by construction: both sides of a link evaluate the
// same predicate on the same View.
type Engine struct {
	rangeLimit float64
}

// New returns an engine linking planes to tasks within rangeLimit of the
// plane. Zero means unlimited range.
func New(rangeLimit float64) *Engine {
	return &Engine{rangeLimit: rangeLimit}
}

// Linked reports whether plane p and task t are neighbours. Both p and the
// task's host must be active; a plane is always linked to the tasks it
// hosts.
func (e *Engine) Linked(v View, p PlaneState, t TaskState) bool {
	if p.Inactive {
		return false
	}
	host, ok := v.plane(t.Host)
	if !ok || host.Inactive {
		return false
	}
	if p.ID == t.Host || e.rangeLimit <= 0 {
		return true
	}
	return p.Location.Distance(t.Task.Location) <= e.rangeLimit
}

// TasksFor returns the tasks linked to plane, in view order.
func (e *Engine) TasksFor(v View, plane domain.PlaneID) []TaskState {
	p, ok := v.plane(plane)
	if !ok {
		return nil
	}
	var out []TaskState
	for _, t := range v.Tasks {
		if e.Linked(v, p, t) {
			out = append(out, t)
		}
	}
	return out
}

// PlanesFor returns the planes linked to task t, in view order.
func (e *Engine) PlanesFor(v View, t TaskState) []domain.PlaneID {
	var out []domain.PlaneID
	for _, p := range v.Planes {
		if e.Linked(v, p, t) {
			out = append(out, p.ID)
		}
	}
	return out
}
