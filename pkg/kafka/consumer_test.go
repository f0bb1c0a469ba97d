package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type fakeSession struct {
	ctx context.Context

	mu      sync.Mutex
	marked  []int64
	commits int
}

func (s *fakeSession) Claims() map[string][]int32 { return map[string][]int32{"t": {0}} }
func (s *fakeSession) MemberID() string { return "member-1" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "t" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newClaim(offsets ...int64) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(offsets))
	for _, off := range offsets {
		ch <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: off}
	}
	close(ch)

	return &fakeClaim{messages: ch}
}

func newHandler(h MessageHandler, size int) *batchHandler {
	return &batchHandler{
		log:       zap.NewNop(),
		handler:   h,
		batchSize: size,
		batchWait: 50 * time.Millisecond,
	}
}

func TestConsumeClaim_CommitsOncePerBatch(t *testing.T) {
	t.Parallel()

	var seen []int64
	h := newHandler(MessageHandlerFunc(func(_ context.Context, msg *sarama.ConsumerMessage) error {
		seen = append(seen, msg.Offset)
		return nil
	}), 2)

	sess := &fakeSession{ctx: context.Background()}

	if err := h.ConsumeClaim(sess, newClaim(10, 11, 12)); err != nil {
		t.Fatalf("ConsumeClaim() error = %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("handled %d messages, want 3", len(seen))
	}
	if sess.commits != 2 {
		t.Errorf("commits = %d, want 2", sess.commits)
	}
	if want := []int64{11, 12}; len(sess.marked) != 2 || sess.marked[0] != want[0] || sess.marked[1] != want[1] {
		t.Errorf("marked = %v, want %v", sess.marked, want)
	}
}

func TestConsumeClaim_FailureAbortsWithoutCommit(t *testing.T) {
	t.Parallel()

	boom := errors.New("store unavailable")
	h := newHandler(MessageHandlerFunc(func(_ context.Context, msg *sarama.ConsumerMessage) error {
		if msg.Offset == 21 {
			return boom
		}
		return nil
	}), 10)

	var observed error
	h.observer = func(_ string, _ int32, _ int, err error) { observed = err }

	sess := &fakeSession{ctx: context.Background()}

	err := h.ConsumeClaim(sess, newClaim(20, 21, 22))
	if !errors.Is(err, boom) {
		t.Fatalf("ConsumeClaim() error = %v, want %v", err, boom)
	}
	if sess.commits != 0 || len(sess.marked) != 0 {
		t.Errorf("commits = %d, marked = %v, want nothing committed", sess.commits, sess.marked)
	}
	if !errors.Is(observed, boom) {
		t.Errorf("observer error = %v, want %v", observed, boom)
	}
	if !h.takeFailure() {
		t.Error("takeFailure() = false, want true after a failed batch")
	}
	if h.takeFailure() {
		t.Error("takeFailure() should reset after being read")
	}
}

func TestConsumeClaim_StopsOnCancelledSession(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	h := newHandler(MessageHandlerFunc(func(context.Context, *sarama.ConsumerMessage) error {
		called = true
		return nil
	}), 10)

	sess := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	if err := h.ConsumeClaim(sess, claim); err != nil {
		t.Fatalf("ConsumeClaim() error = %v", err)
	}
	if called || sess.commits != 0 {
		t.Errorf("handler called = %v, commits = %d, want no work", called, sess.commits)
	}
}

func TestCollect_HonoursBatchWait(t *testing.T) {
	t.Parallel()

	h := newHandler(nil, 100)
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- &sarama.ConsumerMessage{Offset: 1}

	start := time.Now()
	batch, open := h.collect(context.Background(), ch)

	if len(batch) != 1 || !open {
		t.Fatalf("collect() = %d messages, open=%v; want 1, true", len(batch), open)
	}
	if elapsed := time.Since(start); elapsed < h.batchWait {
		t.Errorf("collect() returned after %v, want at least %v", elapsed, h.batchWait)
	}
}
