package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/riskibarqy/transaction-dispatch/internal/config"
	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatchaudit"
	"github.com/riskibarqy/transaction-dispatch/internal/infrastructure/filesystem"
	"github.com/riskibarqy/transaction-dispatch/internal/infrastructure/messaging/kafka"
	"github.com/riskibarqy/transaction-dispatch/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/transaction-dispatch/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/transaction-dispatch/internal/interfaces/consumer"
	"github.com/riskibarqy/transaction-dispatch/internal/interfaces/httpapi"
	idgen "github.com/riskibarqy/transaction-dispatch/internal/platform/id"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/resilience"
	"github.com/riskibarqy/transaction-dispatch/internal/usecase"
)

// API is the producer-side process: the HTTP surface plus the dispatch
// orchestrator and the resources it owns.
type API struct {
	Server   *http.Server
	service  *usecase.DispatchService
	producer *kafka.Producer
	db       *sqlx.DB
}

func NewAPI(cfg config.Config, logger *logging.Logger) (*API, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		ClientID:       cfg.KafkaClientID,
		Acks:           cfg.ProducerAcks,
		Compression:    cfg.ProducerCompression,
		BatchSize:      cfg.ProducerBatchSize,
		BatchBytes:     cfg.ProducerBatchBytes,
		Linger:         cfg.ProducerLinger,
		MessageTimeout: cfg.ProducerMessageTimeout,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.ProducerCircuitEnabled,
			FailureThreshold: cfg.ProducerCircuitFailureCount,
			OpenTimeout:      cfg.ProducerCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.ProducerCircuitHalfOpenMaxReq,
		},
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "build kafka producer")
	}

	var (
		auditRepo dispatchaudit.Repository
		db        *sqlx.DB
	)
	if cfg.AuditDBEnabled {
		db, err = openAuditDB(cfg)
		if err != nil {
			_ = producer.Close()
			return nil, err
		}
		auditRepo = postgres.NewDispatchEventRepository(db)
		logger.Info("dispatch audit stored in postgres", "db_name", dbNameFromURL(cfg.DBURL))
	} else {
		auditRepo = memory.NewDispatchEventRepository()
	}

	service := usecase.NewDispatchService(
		memory.NewJobStore(),
		filesystem.NewDiscovery(cfg.DispatchMaxFileBytes),
		producer,
		auditRepo,
		idgen.NewUUIDGenerator(),
		usecase.DispatchConfig{
			DefaultExtensions: cfg.DispatchAllowedExtensions,
			PublishTimeout:    cfg.DispatchPublishTimeout,
		},
		logger,
	)

	handler := httpapi.NewHandler(service, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	return &API{
		Server: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		service:  service,
		producer: producer,
		db:       db,
	}, nil
}

// Shutdown stops accepting requests, lets running dispatch jobs stop before
// their next file and then releases the producer and the audit database.
func (a *API) Shutdown(ctx context.Context) error {
	var errs error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "shutdown http server"))
	}
	if err := a.service.Shutdown(ctx); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "shutdown dispatch service"))
	}
	if err := a.producer.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "close kafka producer"))
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "close audit db"))
		}
	}
	return errs
}

// Worker is the consumer-side process.
type Worker struct {
	engine *consumer.Engine
}

func NewWorker(cfg config.Config, logger *logging.Logger) (*Worker, error) {
	if logger == nil {
		logger = logging.Default()
	}

	mode, err := consumer.ParseCommitMode(cfg.ConsumerCommitMode)
	if err != nil {
		return nil, err
	}

	source, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaTopic,
		GroupID:       cfg.ConsumerGroupID,
		ClientID:      cfg.KafkaClientID,
		AutoCommit:    cfg.ConsumerAutoCommit,
		FetchMaxBytes: cfg.ConsumerFetchMaxBytes,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "build kafka consumer")
	}

	engine, err := consumer.NewEngine(source, consumer.NewTransactionHandler(logger), consumer.Config{
		MaxDegreeOfParallelism: cfg.ConsumerMaxDegreeOfParallelism,
		MaxAttempts:            cfg.ConsumerMaxProcessingRetries,
		RetryBackoff:           cfg.ConsumerRetryBackoff,
		PollTimeout:            cfg.ConsumerPollTimeout,
		CommitMode:             mode,
	}, logger)
	if err != nil {
		_ = source.Close()
		return nil, err
	}

	return &Worker{engine: engine}, nil
}

// Run blocks until ctx is canceled and in-flight messages have settled.
func (w *Worker) Run(ctx context.Context) error {
	return w.engine.Run(ctx)
}
