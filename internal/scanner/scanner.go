// Package scanner finds commands whose ack window has elapsed and moves them to timeout.
//
// A transition and its COMMAND_TIMEOUT event are written in one transaction: the conditional
// update on device_commands and the insert into the event outbox either both happen or neither
// does. Publishing is left to the outbox publisher, which is woken after every tick.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/apperrors"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/contract"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/lease"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/lifecycle"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/metrics"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/repository"
)

type CommandRepository interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	SelectTimedOut(ctx context.Context, ext repository.RepoExtension, timeoutSeconds, limit int) ([]model.DeviceCommand, error)
	MarkTimedOut(ctx context.Context, ext repository.RepoExtension, commandID, deviceID, errorMessage string) (bool, error)
}

type OutboxRepository interface {
	InsertMessage(ctx context.Context, ext repository.RepoExtension, message model.OutboxMessage) error
}

type EventValidator interface {
	ValidateValue(value *model.DeviceCommandEvent) contract.Result[model.DeviceCommandEvent]
}

// Waker is told that new outbox rows may be waiting.
type Waker interface {
	Wake()
}

type Config struct {
	AckTimeoutSeconds int
	Interval          time.Duration
	Limit             int
	Topic             string
}

// TickResult summarises one pass over the candidates.
type TickResult struct {
	Candidates int
	TimedOut   int
	LostRaces  int
	Invalid    int
	Skipped    int
}

type Scanner struct {
	l          *zap.Logger
	cfg        Config
	commands   CommandRepository
	outboxRepo OutboxRepository
	validator  EventValidator
	lease      lease.Lease
	waker      Waker

	now   func() time.Time
	newID func() uuid.UUID
}

type Option func(*Scanner)

func WithLease(l lease.Lease) Option {
	return func(s *Scanner) { s.lease = l }
}

func WithWaker(w Waker) Option {
	return func(s *Scanner) { s.waker = w }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *Scanner) { s.newID = newID }
}

func New(
	l *zap.Logger,
	cfg Config,
	commands CommandRepository,
	outboxRepo OutboxRepository,
	validator EventValidator,
	opts ...Option,
) *Scanner {
	s := &Scanner{
		l:          l,
		cfg:        cfg,
		commands:   commands,
		outboxRepo: outboxRepo,
		validator:  validator,
		lease:      lease.Always{},
		now:        time.Now,
		newID:      uuid.New,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run ticks until ctx is cancelled. Ticks start Interval apart; a tick that overruns is followed
// immediately by the next one. Tick errors are logged and never stop the loop.
func (s *Scanner) Run(ctx context.Context) error {
	s.l.Info("Scanner started",
		zap.Int("ack_timeout_seconds", s.cfg.AckTimeoutSeconds),
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("limit", s.cfg.Limit),
	)

	for {
		start := time.Now()

		s.runTick(ctx)

		wait := max(s.cfg.Interval-time.Since(start), 0)

		select {
		case <-ctx.Done():
			s.releaseLease()
			s.l.Info("Scanner stopped")

			return nil
		case <-time.After(wait):
		}
	}
}

func (s *Scanner) runTick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.ScannerTickDuration.Observe(time.Since(start).Seconds()) }()

	// Without the lease store the tick still runs; the conditional update keeps concurrent scanners safe.
	held, err := s.lease.Acquire(ctx)
	if err != nil {
		s.l.Warn("Scan lease unavailable, scanning without it", zap.Error(err))

		held = true
	}

	if !held {
		metrics.ScannerTicksTotal.WithLabelValues("skipped").Inc()
		s.l.Debug("Scan lease held elsewhere, skipping tick")

		return
	}

	res, err := s.Tick(ctx)

	if res.TimedOut > 0 && s.waker != nil {
		s.waker.Wake()
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}

		metrics.ScannerTicksTotal.WithLabelValues("error").Inc()
		s.l.Error("Scan tick failed", zap.Error(err), zap.Int("timed_out", res.TimedOut))

		return
	}

	metrics.ScannerTicksTotal.WithLabelValues("ok").Inc()

	if res.Candidates > 0 {
		s.l.Info("Scan tick finished",
			zap.Int("candidates", res.Candidates),
			zap.Int("timed_out", res.TimedOut),
			zap.Int("lost_races", res.LostRaces),
			zap.Int("invalid", res.Invalid),
			zap.Int("skipped", res.Skipped),
		)
	}
}

// Tick runs one scan. A store error stops the tick; rows not yet handled stay sent and are
// picked up again by the next tick.
func (s *Scanner) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	candidates, err := s.commands.SelectTimedOut(ctx, nil, s.cfg.AckTimeoutSeconds, s.cfg.Limit)
	if err != nil {
		return res, err
	}

	res.Candidates = len(candidates)

	for _, cmd := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ev, payload, err := s.buildEvent(ctx, cmd)
		if err != nil && !errors.Is(err, apperrors.ErrSchemaInvalid) {
			res.Skipped++
			s.l.Error("Failed to build timeout event, command left as is",
				zap.String("command_id", cmd.CommandID),
				zap.String("status", string(cmd.Status)),
				zap.Error(err),
			)

			continue
		}

		if err != nil {
			res.Invalid++
			metrics.OutboundSchemaViolationsTotal.Inc()
			s.l.Error("Timeout event failed its own schema, command left as sent",
				zap.String("severity", "bug"),
				zap.String("command_id", cmd.CommandID),
				zap.String("device_id", cmd.DeviceID),
				zap.Error(err),
			)

			continue
		}

		transitioned, err := s.transition(ctx, cmd, ev, payload)
		if err != nil {
			return res, fmt.Errorf("failed to time out command %s: %w", cmd.CommandID, err)
		}

		if !transitioned {
			res.LostRaces++
			metrics.ScannerLostRacesTotal.Inc()
			s.l.Debug("Command no longer sent, skipping", zap.String("command_id", cmd.CommandID))

			continue
		}

		res.TimedOut++
		metrics.CommandsTimedOutTotal.Inc()
		s.l.Info("Command timed out",
			zap.String("command_id", cmd.CommandID),
			zap.String("device_id", cmd.DeviceID),
			zap.String("event_id", ev.EventID.String()),
		)
	}

	return res, nil
}

// buildEvent checks the transition is legal and produces a schema-valid COMMAND_TIMEOUT event.
func (s *Scanner) buildEvent(ctx context.Context, cmd model.DeviceCommand) (*model.DeviceCommandEvent, []byte, error) {
	m := lifecycle.New(cmd.Status)
	if err := m.Apply(ctx, lifecycle.Timeout); err != nil {
		return nil, nil, err
	}

	eventType, _ := lifecycle.EventType(m.Status())

	ev := &model.DeviceCommandEvent{
		SchemaVersion: model.CommandEventSchemaVersion,
		EventID:       s.newID(),
		EventType:     eventType,
		CreatedTS:     model.NewTimestamp(s.now().UTC()),
		CommandID:     cmd.CommandID,
		DeviceID:      cmd.DeviceID,
		Status:        m.Status(),
		Detail:        s.detail(),
		Result:        map[string]any{},
	}

	if res := s.validator.ValidateValue(ev); !res.Valid {
		return nil, nil, res.Err()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return ev, payload, nil
}

func (s *Scanner) transition(ctx context.Context, cmd model.DeviceCommand, ev *model.DeviceCommandEvent, payload []byte) (ok bool, err error) {
	tx, err := s.commands.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	done := false

	defer func() {
		if done {
			return
		}

		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			s.l.Warn("Failed to roll back transaction", zap.Error(rErr))
		}
	}()

	changed, err := s.commands.MarkTimedOut(ctx, tx, cmd.CommandID, cmd.DeviceID, s.detail())
	if err != nil {
		return false, err
	}

	if !changed {
		return false, nil
	}

	message := model.OutboxMessage{
		ID:      ev.EventID,
		Topic:   s.cfg.Topic,
		Key:     cmd.DeviceID,
		Payload: payload,
	}

	if err := s.outboxRepo.InsertMessage(ctx, tx, message); err != nil {
		return false, fmt.Errorf("failed to insert outbox message: %w", err)
	}

	err = tx.Commit(ctx)
	done = true

	if err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

func (s *Scanner) detail() string {
	return fmt.Sprintf("ack timeout after %ds", s.cfg.AckTimeoutSeconds)
}

func (s *Scanner) releaseLease() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.lease.Release(ctx); err != nil {
		s.l.Warn("Failed to release scan lease", zap.Error(err))
	}
}
