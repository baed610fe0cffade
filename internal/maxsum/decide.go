package maxsum

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"planes_maxsum/internal/domain"
)

// Host is the plane agent the behavior runs in.
type Host interface {
	ID() domain.PlaneID
	// Tasks returns the plane's current task list in index order.
	Tasks() []domain.Task
	TaskNode(task domain.TaskID) (*TaskNode, bool)
	AddTask(task domain.Task)
	RemoveTask(task domain.TaskID)
	IsInactive() bool
	Send(env domain.Envelope) error
}

// Journal records decisions for diagnostics. Failures are never fatal.
type Journal interface {
	LogDecision(ctx context.Context, entry domain.DecisionLog) error
}

type Schedule struct {
	// StartEvery is the period, in ticks, of a decision round.
	StartEvery int64
	// Iterations is the offset within the period at which decisions are
	// read, i.e. the number of message rounds allowed before deciding.
	Iterations int64
}

// DecisionTick reports whether decisions are read at tick now.
func (s Schedule) DecisionTick(now int64) bool {
	return s.StartEvery > 0 && now%s.StartEvery == s.Iterations
}

// RefreshTick reports whether tick now opens a new period.
func (s Schedule) RefreshTick(now int64) bool {
	return s.StartEvery > 0 && now%s.StartEvery == 0
}

// DecideBehavior turns the decisions of the task nodes hosted by a plane
// into task handoffs between planes.
type DecideBehavior struct {
	host     Host
	clock    Clock
	schedule Schedule
	journal  Journal
	runID    string
	logger   *slog.Logger
}

func NewDecideBehavior(host Host, clock Clock, schedule Schedule, journal Journal, runID string, logger *slog.Logger) *DecideBehavior {
	if logger == nil {
		logger = discardLogger()
	}
	return &DecideBehavior{
		host:     host,
		clock:    clock,
		schedule: schedule,
		journal:  journal,
		runID:    runID,
		logger:   logger,
	}
}

// OnHandTask incorporates a task relinquished to this plane.
func (b *DecideBehavior) OnHandTask(ctx context.Context, from domain.PlaneID, msg domain.HandTask) {
	b.host.AddTask(msg.Task)
	now := b.clock.Now()
	b.logger.Debug("task incorporated", "tick", now, "plane", b.host.ID(), "task", msg.Task.ID, "from", from)
	b.record(ctx, domain.DecisionLog{
		Tick:    now,
		TaskID:  msg.Task.ID,
		Action:  domain.ActionTaskIncorporated,
		Reason:  "task handed over by " + string(from),
		Payload: mustJSON(map[string]any{"from": from}),
	})
}

// AfterMessages reads the decision of every hosted task node at the
// decision tick and relocates tasks whose chosen plane is not this one.
//
// Tasks are processed in reverse index order. This order fixes which
// relocation happens first when several tasks decide in the same tick and
// is part of the behavior's determinism contract.
func (b *DecideBehavior) AfterMessages(ctx context.Context) error {
	now := b.clock.Now()
	if b.host.IsInactive() || !b.schedule.DecisionTick(now) {
		return nil
	}

	self := b.host.ID()
	tasks := b.host.Tasks()
	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]
		node, ok := b.host.TaskNode(t.ID)
		if !ok {
			return inconsistent("plane %s owns task %s without a task node", self, t.ID)
		}
		choice, decided, err := node.MakeDecision()
		if err != nil {
			return err
		}
		b.logger.Debug("task chooses", "tick", now, "plane", self, "task", t.ID, "choice", choice, "decided", decided)
		b.record(ctx, domain.DecisionLog{
			Tick:    now,
			TaskID:  t.ID,
			Action:  domain.ActionTaskChosen,
			Reason:  decisionReason(self, choice, decided),
			Payload: mustJSON(map[string]any{"choice": choice, "decided": decided}),
		})
		if decided && choice != self {
			if err := b.relocate(ctx, t, choice); err != nil {
				return err
			}
		}
	}
	return nil
}

// relocate relinquishes t before addressing it to choice. If the send
// fails the task is taken back.
func (b *DecideBehavior) relocate(ctx context.Context, t domain.Task, choice domain.PlaneID) error {
	self := b.host.ID()
	now := b.clock.Now()
	b.host.RemoveTask(t.ID)
	env := domain.Envelope{
		ID:      uuid.NewString(),
		From:    self,
		To:      choice,
		Tick:    now,
		Payload: domain.HandTask{Task: t},
	}
	if err := b.host.Send(env); err != nil {
		// Undelivered: the task must not vanish.
		b.host.AddTask(t)
		return fmt.Errorf("hand task %s to %s: %w", t.ID, choice, err)
	}
	b.logger.Info("task handed off", "tick", now, "plane", self, "task", t.ID, "to", choice, "envelope", env.ID)
	b.record(ctx, domain.DecisionLog{
		Tick:    now,
		TaskID:  t.ID,
		Action:  domain.ActionTaskHandedOff,
		Reason:  "task prefers " + string(choice),
		Payload: mustJSON(map[string]any{"to": choice, "envelope": env.ID}),
	})
	return nil
}

func (b *DecideBehavior) record(ctx context.Context, entry domain.DecisionLog) {
	if b.journal == nil {
		return
	}
	entry.RunID = b.runID
	entry.PlaneID = b.host.ID()
	if err := b.journal.LogDecision(ctx, entry); err != nil {
		b.logger.Warn("journal decision failed", "action", entry.Action, "task", entry.TaskID, "error", err)
	}
}

func decisionReason(self, choice domain.PlaneID, decided bool) string {
	switch {
	case !decided:
		return "no candidate has reported"
	case choice == self:
		return "task stays"
	default:
		return "task moves"
	}
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
