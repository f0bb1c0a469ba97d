package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/api/http/handler"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/api/http/route"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/apperrors"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/config"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/contract"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/lease"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/metrics"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/msg/dlq"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/msg/eventlog"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/msg/notifier"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/msg/outbox"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/repository"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/scanner"
	"github.com/kipp7/landslide-monitoring-v2-sub006/pkg/kafka"
	"github.com/kipp7/landslide-monitoring-v2-sub006/pkg/postgres"
	"github.com/kipp7/landslide-monitoring-v2-sub006/pkg/redis"
	"github.com/kipp7/landslide-monitoring-v2-sub006/pkg/server"
)

const (
	opsReadTimeout  = 5 * time.Second
	opsWriteTimeout = 10 * time.Second
	opsIdleTimeout  = 60 * time.Second

	startupPingTimeout = 5 * time.Second
)

type Runner interface {
	Run(ctx context.Context) error
}

type App struct {
	Cfg  *config.Config
	Log  *zap.Logger
	DB   postgres.Postgres
	RDB  redis.Redis
	EBus *EBus
	Ops  server.HTTPServer
}

// EBus holds the broker side of a process. The scanner role fills Producer, Publisher and Scanner;
// every other role fills Consumer.
type EBus struct {
	Producer  kafka.Producer
	Publisher *outbox.Publisher
	Scanner   *scanner.Scanner
	Consumer  kafka.ConsumerGroupRunner
}

type Validators struct {
	CommandEvents *contract.Validator[model.DeviceCommandEvent]
	TelemetryDlq  *contract.Validator[model.TelemetryDlqEnvelope]
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	validators, err := initValidators(&cfg.Contract)
	if err != nil {
		log.Error("Failed to load envelope schemas", zap.Error(err))
		return nil, fmt.Errorf("failed to load envelope schemas: %w", err)
	}

	log.Debug("Envelope schemas loaded", zap.String("dir", cfg.Contract.SchemaDir))

	db, err := initDB(&cfg.Database)
	if err != nil {
		log.Error("Failed to initialize database", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	log.Debug("Database initialized")

	if err := startupPing(db.Ping); err != nil {
		log.Warn("Database unreachable at startup, work retries on first use", zap.Error(err))
	}

	a := &App{
		Cfg: cfg,
		Log: log,
		DB:  db,
	}

	if cfg.Role == config.RoleScanner && cfg.Redis.Enable {
		rdb, err := initRedis(&cfg.Redis)
		if err != nil {
			db.Close()
			log.Error("Failed to initialize redis", zap.Error(err))

			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}

		a.RDB = rdb

		log.Debug("Redis initialized")

		if err := startupPing(rdb.Ping); err != nil {
			log.Warn("Redis unreachable at startup, scanning without the lease until it returns", zap.Error(err))
		}
	}

	eBus, err := initEBus(log, cfg, db, a.RDB, validators)
	if err != nil {
		_ = a.closeStores()
		log.Error("Failed to initialize ebus", zap.Error(err))

		return nil, fmt.Errorf("failed to initialize ebus: %w", err)
	}

	a.EBus = eBus

	log.Debug("EBus initialized", zap.String("role", string(cfg.Role)))

	if cfg.Ops.Enabled {
		a.Ops = initOpsServer(log, cfg, db, a.RDB)

		log.Debug("Ops server initialized", zap.String("addr", a.Ops.Addr()))
	}

	return a, nil
}

func MustNew(cfg *config.Config, log *zap.Logger) *App {
	app, err := New(cfg, log)
	if err != nil {
		panic(err)
	}

	return app
}

// Run blocks until ctx is cancelled or a task fails. The first failure cancels the others.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, task := range a.tasks() {
		g.Go(func() error {
			return task.Run(gctx)
		})
	}

	if a.Ops != nil {
		g.Go(a.Ops.Run)
		g.Go(func() error {
			<-gctx.Done()
			return a.Ops.Shutdown()
		})
	}

	a.Log.Info("Application started", zap.String("role", string(a.Cfg.Role)))

	return g.Wait()
}

func (a *App) tasks() []Runner {
	if a.EBus.Consumer != nil {
		return []Runner{a.EBus.Consumer}
	}

	return []Runner{a.EBus.Scanner, a.EBus.Publisher}
}

func (a *App) Shutdown() error {
	err := apperrors.ErrShutdown
	failed := false

	if a.EBus.Consumer != nil {
		if cErr := a.EBus.Consumer.Shutdown(); cErr != nil {
			err = fmt.Errorf("%w, failed to close consumer group: %w", err, cErr)
			failed = true
		}

		a.Log.Debug("Consumer group closed")
	}

	if a.EBus.Producer != nil {
		if pErr := a.EBus.Producer.Close(); pErr != nil {
			err = fmt.Errorf("%w, failed to close producer: %w", err, pErr)
			failed = true
		}

		a.Log.Debug("Producer closed")
	}

	if rdbErr := a.closeStores(); rdbErr != nil {
		err = fmt.Errorf("%w, failed to close RDB: %w", err, rdbErr)
		failed = true
	}

	a.Log.Debug("Database closed")

	if failed {
		return err
	}

	return nil
}

func (a *App) closeStores() error {
	var err error

	if a.RDB != nil {
		err = a.RDB.Close()
	}

	a.DB.Close()

	return err
}

func initValidators(cfg *config.Contract) (*Validators, error) {
	events, err := contract.LoadCommandEvents(cfg.SchemaDir)
	if err != nil {
		return nil, err
	}

	dlqEnvelopes, err := contract.LoadTelemetryDlq(cfg.SchemaDir)
	if err != nil {
		return nil, err
	}

	return &Validators{CommandEvents: events, TelemetryDlq: dlqEnvelopes}, nil
}

func startupPing(ping func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), startupPingTimeout)
	defer cancel()

	return ping(ctx)
}

func initDB(cfg *config.Database) (postgres.Postgres, error) {
	postgresCfg := &postgres.Config{
		URL:      cfg.URL,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Name:     cfg.Name,
		SSLMode:  cfg.SSLMode,
		MaxConns: cfg.MaxConns,
		MinConns: cfg.MinConns,
		Migration: postgres.Migration{
			Path:      cfg.Migration.Path,
			AutoApply: cfg.Migration.AutoApply,
		},
	}

	db, err := postgres.New(postgresCfg)
	if err != nil {
		return nil, err
	}

	return db, nil
}

func initRedis(cfg *config.Redis) (redis.Redis, error) {
	redisCfg := &redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	rdb, err := redis.New(redisCfg)
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func initEBus(log *zap.Logger, cfg *config.Config, db postgres.Postgres, rdb redis.Redis, v *Validators) (*EBus, error) {
	pool := db.Pool()

	var h kafka.MessageHandler

	switch cfg.Role {
	case config.RoleScanner:
		return initScannerBus(log, cfg, pool, rdb, v)
	case config.RoleNotifier:
		h = notifier.NewHandler(log, v.CommandEvents, repository.NewNotificationRepository(pool), cfg.Notifier.NotifyType)
	case config.RoleDlqRecorder:
		h = dlq.NewRecorder(log, v.TelemetryDlq, repository.NewTelemetryDlqRepository(pool))
	case config.RoleEventsRecorder:
		h = eventlog.NewRecorder(log, v.CommandEvents, repository.NewCommandEventRepository(pool))
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownRole, cfg.Role)
	}

	consumer, err := kafka.NewBatchConsumer(
		log,
		cfg.Kafka.Brokers,
		cfg.Kafka.GroupID,
		[]string{cfg.Topic()},
		h,
		kafka.WithConsumerClientID(cfg.Kafka.ClientID),
		kafka.WithBalancerConsumer(kafka.BalanceStrategy(cfg.Kafka.Consumer.Strategy)),
		kafka.WithBatch(cfg.Kafka.Consumer.BatchSize, cfg.Kafka.Consumer.BatchWait),
		kafka.WithRetryBackoff(cfg.Kafka.Consumer.RetryBackoff),
		kafka.WithSession(cfg.Kafka.Consumer.SessionTimeout, cfg.Kafka.Consumer.HeartbeatInterval),
		kafka.WithBatchObserver(metrics.ObserveBatch),
	)
	if err != nil {
		return nil, err
	}

	return &EBus{Consumer: consumer}, nil
}

func initScannerBus(log *zap.Logger, cfg *config.Config, pool repository.DB, rdb redis.Redis, v *Validators) (*EBus, error) {
	opts := []kafka.ProducerOption{
		kafka.WithClientID(cfg.Kafka.ClientID),
		kafka.WithBalancer(kafka.Hash),
		kafka.WithRequiredAcks(requiredAcks(cfg.Kafka.Producer.RequiredAcks)),
	}

	if cfg.Kafka.Producer.Idempotent {
		opts = append(opts, kafka.WithIdempotence())
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, opts...)
	if err != nil {
		return nil, err
	}

	outboxRepo := repository.NewOutboxRepository(pool)

	publisher := outbox.NewPublisher(log, outbox.Config{
		Name:         cfg.App.ServiceName,
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
	}, producer, outboxRepo)

	scannerOpts := []scanner.Option{scanner.WithWaker(publisher)}

	if rdb != nil {
		owner := leaseOwner()
		scannerOpts = append(scannerOpts, scanner.WithLease(
			lease.NewRedisLease(rdb.Client(), cfg.Redis.LeaseKey, owner, cfg.Redis.LeaseTTL),
		))

		log.Debug("Scan lease enabled", zap.String("key", cfg.Redis.LeaseKey), zap.String("owner", owner))
	}

	s := scanner.New(log, scanner.Config{
		AckTimeoutSeconds: cfg.Scanner.AckTimeoutSeconds,
		Interval:          cfg.Scanner.Interval,
		Limit:             cfg.Scanner.Limit,
		Topic:             cfg.Topic(),
	}, repository.NewCommandRepository(pool), outboxRepo, v.CommandEvents, scannerOpts...)

	return &EBus{
		Producer:  producer,
		Publisher: publisher,
		Scanner:   s,
	}, nil
}

func initOpsServer(log *zap.Logger, cfg *config.Config, db postgres.Postgres, rdb redis.Redis) server.HTTPServer {
	probes := []handler.Probe{{Name: "postgres", Check: db.Ping}}

	if rdb != nil {
		probes = append(probes, handler.Probe{Name: "redis", Check: rdb.Ping})
	}

	router := route.SetupRouter(log, handler.NewHealthHandler(log, cfg.App.ServiceName, probes...))

	return server.NewHTTPServer(
		server.WithAddr(cfg.Ops.Host, cfg.Ops.Port),
		server.WithTimeout(opsReadTimeout, opsWriteTimeout, opsIdleTimeout),
		server.WithHandler(router),
	)
}

func requiredAcks(s string) kafka.RequiredAcks {
	switch s {
	case "none":
		return kafka.NoResponse
	case "local":
		return kafka.WaitForLocal
	default:
		return kafka.RequireAll
	}
}

// leaseOwner identifies this process in the scan lease; the uuid keeps two replicas on one host apart.
func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}

	return host + "/" + uuid.NewString()
}
