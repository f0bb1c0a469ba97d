package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/contract"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/repository"
)

// fakeRepo enforces the (event_id, notify_type) uniqueness of the real table.
type fakeRepo struct {
	mu   sync.Mutex
	rows map[string]*model.DeviceCommandNotification
	err  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[string]*model.DeviceCommandNotification)}
}

func (r *fakeRepo) InsertIfAbsent(_ context.Context, _ repository.RepoExtension, n *model.DeviceCommandNotification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return false, r.err
	}

	key := n.EventID.String() + "/" + n.NotifyType
	if _, ok := r.rows[key]; ok {
		return false, nil
	}

	r.rows[key] = n

	return true, nil
}

func newHandler(t *testing.T, repo Repository) *Handler {
	t.Helper()

	v, err := contract.LoadCommandEvents("../../../schemas")
	if err != nil {
		t.Fatalf("LoadCommandEvents() error = %v", err)
	}

	return NewHandler(zap.NewNop(), v, repo, "app")
}

func eventMessage(eventID uuid.UUID, eventType model.CommandEventType, status model.CommandStatus, commandID, deviceID string) *sarama.ConsumerMessage {
	value := fmt.Sprintf(`{"schema_version":1,"event_id":%q,"event_type":%q,"created_ts":"2026-10-19T08:00:31Z","command_id":%q,"device_id":%q,"status":%q,"detail":"ack timeout after 30s","result":{}}`,
		eventID, eventType, commandID, deviceID, status)

	return &sarama.ConsumerMessage{Topic: "device.command_events.v1", Partition: 0, Offset: 7, Value: []byte(value)}
}

func TestHandleMessage_TimeoutCreatesOneNotification(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	h := newHandler(t, repo)

	eventID := uuid.New()
	commandID := gofakeit.UUID()
	deviceID := gofakeit.UUID()
	msg := eventMessage(eventID, model.CommandEventTimeout, model.CommandStatusTimeout, commandID, deviceID)

	// Redelivery of the same event must not create a second row.
	for i := 0; i < 2; i++ {
		if err := h.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("HandleMessage() #%d error = %v", i, err)
		}
	}

	if len(repo.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(repo.rows))
	}

	n := repo.rows[eventID.String()+"/app"]
	if n == nil {
		t.Fatal("notification not keyed by event id and notify type")
	}

	if n.Title != "Command timeout: "+commandID {
		t.Errorf("Title = %q", n.Title)
	}

	wantContent := "Command timeout\ndeviceId=" + deviceID + "\ncommandId=" + commandID + "\nstatus=timeout\ndetail=ack timeout after 30s\n"
	if n.Content != wantContent {
		t.Errorf("Content = %q, want %q", n.Content, wantContent)
	}
	if n.Status != model.NotificationStatusPending {
		t.Errorf("Status = %s, want pending", n.Status)
	}
}

func TestHandleMessage_Skips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *sarama.ConsumerMessage
	}{
		{
			name: "acked",
			msg:  eventMessage(uuid.New(), model.CommandEventAcked, model.CommandStatusAcked, gofakeit.UUID(), gofakeit.UUID()),
		},
		{
			name: "sent",
			msg:  eventMessage(uuid.New(), model.CommandEventSent, model.CommandStatusSent, gofakeit.UUID(), gofakeit.UUID()),
		},
		{
			name: "missing device id",
			msg: &sarama.ConsumerMessage{Topic: "device.command_events.v1", Value: []byte(
				`{"schema_version":1,"event_id":"8a3c1f0e-2b7d-4c55-9a1e-0f6b2d7c9e10","event_type":"COMMAND_FAILED","created_ts":"2026-10-19T08:00:31Z","command_id":"0d1f3a52-6b8e-4f0c-a9d2-3e4b5c6d7e8f","status":"failed"}`,
			)},
		},
		{
			name: "not json",
			msg:  &sarama.ConsumerMessage{Topic: "device.command_events.v1", Value: []byte(gofakeit.LetterN(24))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := newFakeRepo()
			h := newHandler(t, repo)

			if err := h.HandleMessage(context.Background(), tt.msg); err != nil {
				t.Fatalf("HandleMessage() error = %v, want nil so the offset advances", err)
			}
			if len(repo.rows) != 0 {
				t.Errorf("rows = %d, want 0", len(repo.rows))
			}
		})
	}
}

func TestHandleMessage_StoreErrorAbortsBatch(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.err = errors.New("connection refused")
	h := newHandler(t, repo)

	msg := eventMessage(uuid.New(), model.CommandEventFailed, model.CommandStatusFailed, gofakeit.UUID(), gofakeit.UUID())

	if err := h.HandleMessage(context.Background(), msg); !errors.Is(err, repo.err) {
		t.Fatalf("HandleMessage() error = %v, want %v", err, repo.err)
	}
}

func TestBuild_FailedWithoutDetail(t *testing.T) {
	t.Parallel()

	ev := &model.DeviceCommandEvent{
		EventID:   uuid.New(),
		EventType: model.CommandEventFailed,
		CommandID: "c1",
		DeviceID:  "d1",
		Status:    model.CommandStatusFailed,
	}

	n := Build(ev, "sms")

	if n.Title != "Command failed: c1" {
		t.Errorf("Title = %q, want %q", n.Title, "Command failed: c1")
	}
	if want := "Command failed\ndeviceId=d1\ncommandId=c1\nstatus=failed\n"; n.Content != want {
		t.Errorf("Content = %q, want %q", n.Content, want)
	}
	if n.NotifyType != "sms" {
		t.Errorf("NotifyType = %s, want sms", n.NotifyType)
	}
}
