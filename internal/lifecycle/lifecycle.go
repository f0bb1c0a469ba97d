// Package lifecycle describes which command status changes are legal.
//
//	queued --dispatch--> sent --ack-----> acked
//	   |                   |--fail----> failed
//	   |--fail--> failed   `--timeout-> timeout
//	   `--cancel--> canceled
package lifecycle

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/apperrors"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
)

type Event string

const (
	Dispatch Event = "dispatch"
	Ack      Event = "ack"
	Fail     Event = "fail"
	Timeout  Event = "timeout"
	Cancel   Event = "cancel"
)

var transitions = fsm.Events{
	{Name: string(Dispatch), Src: []string{string(model.CommandStatusQueued)}, Dst: string(model.CommandStatusSent)},
	{Name: string(Ack), Src: []string{string(model.CommandStatusSent)}, Dst: string(model.CommandStatusAcked)},
	{Name: string(Fail), Src: []string{string(model.CommandStatusQueued), string(model.CommandStatusSent)}, Dst: string(model.CommandStatusFailed)},
	{Name: string(Timeout), Src: []string{string(model.CommandStatusSent)}, Dst: string(model.CommandStatusTimeout)},
	{Name: string(Cancel), Src: []string{string(model.CommandStatusQueued)}, Dst: string(model.CommandStatusCanceled)},
}

var eventTypes = map[model.CommandStatus]model.CommandEventType{
	model.CommandStatusSent:    model.CommandEventSent,
	model.CommandStatusAcked:   model.CommandEventAcked,
	model.CommandStatusFailed:  model.CommandEventFailed,
	model.CommandStatusTimeout: model.CommandEventTimeout,
}

// Machine tracks the status of a single command.
type Machine struct {
	fsm *fsm.FSM
}

func New(status model.CommandStatus) *Machine {
	return &Machine{fsm: fsm.NewFSM(string(status), transitions, fsm.Callbacks{})}
}

func (m *Machine) Status() model.CommandStatus {
	return model.CommandStatus(m.fsm.Current())
}

func (m *Machine) Can(ev Event) bool {
	return m.fsm.Can(string(ev))
}

func (m *Machine) Apply(ctx context.Context, ev Event) error {
	from := m.fsm.Current()

	if err := m.fsm.Event(ctx, string(ev)); err != nil {
		return fmt.Errorf("%w: %s on %s: %w", apperrors.ErrIllegalTransition, ev, from, err)
	}

	return nil
}

// EventType is the lifecycle event published when a command enters status. The second result is
// false for statuses that are never announced.
func EventType(status model.CommandStatus) (model.CommandEventType, bool) {
	t, ok := eventTypes[status]
	return t, ok
}

// StatusOf is the status a command must be in for an event of type t to be consistent.
func StatusOf(t model.CommandEventType) (model.CommandStatus, bool) {
	for status, et := range eventTypes {
		if et == t {
			return status, true
		}
	}

	return "", false
}
