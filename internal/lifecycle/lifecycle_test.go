package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/apperrors"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
)

func TestMachine_Apply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    model.CommandStatus
		event   Event
		want    model.CommandStatus
		wantErr bool
	}{
		{from: model.CommandStatusSent, event: Timeout, want: model.CommandStatusTimeout},
		{from: model.CommandStatusSent, event: Ack, want: model.CommandStatusAcked},
		{from: model.CommandStatusSent, event: Fail, want: model.CommandStatusFailed},
		{from: model.CommandStatusQueued, event: Dispatch, want: model.CommandStatusSent},
		{from: model.CommandStatusQueued, event: Cancel, want: model.CommandStatusCanceled},
		{from: model.CommandStatusAcked, event: Timeout, want: model.CommandStatusAcked, wantErr: true},
		{from: model.CommandStatusTimeout, event: Timeout, want: model.CommandStatusTimeout, wantErr: true},
		{from: model.CommandStatusQueued, event: Timeout, want: model.CommandStatusQueued, wantErr: true},
		{from: model.CommandStatusCanceled, event: Ack, want: model.CommandStatusCanceled, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			t.Parallel()

			m := New(tt.from)
			err := m.Apply(context.Background(), tt.event)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperrors.ErrIllegalTransition) {
				t.Errorf("Apply() error = %v, want %v", err, apperrors.ErrIllegalTransition)
			}
			if m.Status() != tt.want {
				t.Errorf("Status() = %s, want %s", m.Status(), tt.want)
			}
		})
	}
}

func TestEventTypeAndStatusOf(t *testing.T) {
	t.Parallel()

	if et, ok := EventType(model.CommandStatusTimeout); !ok || et != model.CommandEventTimeout {
		t.Errorf("EventType(timeout) = %s, %v", et, ok)
	}
	if _, ok := EventType(model.CommandStatusQueued); ok {
		t.Error("EventType(queued) should not be announced")
	}
	if st, ok := StatusOf(model.CommandEventFailed); !ok || st != model.CommandStatusFailed {
		t.Errorf("StatusOf(COMMAND_FAILED) = %s, %v", st, ok)
	}
}
