// Package taskstore persists the cross-turn context of the voice command
// state machine.
package taskstore

import (
	"context"
	"errors"
	"time"
)

// ActiveTask tags the multi-turn flow in progress.
type ActiveTask string

const (
	TaskNone        ActiveTask = "none"
	TaskBookingFlow ActiveTask = "booking-flow"
)

// Awaiting is what kind of reply the machine expects next.
type Awaiting string

const (
	AwaitNone      Awaiting = "none"
	AwaitYesNo     Awaiting = "yes_no"
	AwaitSelection Awaiting = "selection"
	AwaitFreeText  Awaiting = "free_text"
)

// VoiceTask is the cross-turn context. TaskData only ever grows until
// the task is reset.
type VoiceTask struct {
	ActiveTask        ActiveTask        `json:"active_task"`
	TaskData          map[string]string `json:"task_data"`
	Awaiting          Awaiting          `json:"awaiting_response"`
	PendingNavigation string            `json:"pending_navigation,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Empty is the no-task state.
func Empty() VoiceTask {
	return VoiceTask{ActiveTask: TaskNone, TaskData: map[string]string{}, Awaiting: AwaitNone}
}

// Merge adds data into the task, overwriting keys that repeat.
func (t *VoiceTask) Merge(data map[string]string) {
	if t.TaskData == nil {
		t.TaskData = make(map[string]string, len(data))
	}
	for k, v := range data {
		t.TaskData[k] = v
	}
}

// Reset returns t to the no-task state.
func (t *VoiceTask) Reset() {
	*t = Empty()
}

// Clone deep-copies t.
func (t VoiceTask) Clone() VoiceTask {
	out := t
	out.TaskData = make(map[string]string, len(t.TaskData))
	for k, v := range t.TaskData {
		out.TaskData[k] = v
	}
	return out
}

// IsEmpty reports whether no flow is in progress.
func (t VoiceTask) IsEmpty() bool {
	return (t.ActiveTask == "" || t.ActiveTask == TaskNone) &&
		(t.Awaiting == "" || t.Awaiting == AwaitNone) &&
		t.PendingNavigation == "" && len(t.TaskData) == 0
}

var ErrNotFound = errors.New("voice task not found")

// Store persists one VoiceTask per owner.
type Store interface {
	Load(ctx context.Context, owner string) (VoiceTask, error)
	Save(ctx context.Context, owner string, task VoiceTask) error
	Clear(ctx context.Context, owner string) error
	Close() error
}
