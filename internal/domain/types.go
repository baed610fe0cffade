package domain

import (
	"encoding/json"
	"math"
	"time"
)

type PlaneID string

type TaskID string

type Location struct {
	X float64 `json:"x" toml:"x" yaml:"x"`
	Y float64 `json:"y" toml:"y" yaml:"y"`
}

func (l Location) Distance(o Location) float64 {
	return math.Hypot(l.X-o.X, l.Y-o.Y)
}

// Task is a unit of work owned by exactly one plane at a time.
type Task struct {
	ID       TaskID   `json:"id"`
	Location Location `json:"location"`
}

// Envelope is an addressed agent-to-agent message. Payload is one of the
// max-sum messages or a HandTask.
type Envelope struct {
	ID      string  `json:"id"`
	From    PlaneID `json:"from"`
	To      PlaneID `json:"to"`
	Tick    int64   `json:"tick"`
	Payload any     `json:"payload"`
}

// HandTask tells the recipient that the sender relinquished Task to it.
type HandTask struct {
	Task Task `json:"task"`
}

type DecisionAction string

const (
	ActionTaskChosen       DecisionAction = "task_chosen"
	ActionTaskHandedOff    DecisionAction = "task_handed_off"
	ActionTaskIncorporated DecisionAction = "task_incorporated"
	ActionGraphRefreshed   DecisionAction = "graph_refreshed"
)

type DecisionLog struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Tick      int64           `json:"tick"`
	TaskID    TaskID          `json:"task_id,omitempty"`
	PlaneID   PlaneID         `json:"plane_id"`
	Action    DecisionAction  `json:"action"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Assignment is one row of the final task-to-plane table.
type Assignment struct {
	TaskID  TaskID  `json:"task_id"`
	PlaneID PlaneID `json:"plane_id"`
	Cost    float64 `json:"cost"`
}
