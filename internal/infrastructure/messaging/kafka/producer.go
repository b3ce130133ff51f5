package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/resilience"
)

type ProducerConfig struct {
	Brokers        []string
	Topic          string
	ClientID       string
	Acks           string
	Compression    string
	BatchSize      int
	BatchBytes     int64
	Linger         time.Duration
	MessageTimeout time.Duration
	CircuitBreaker resilience.CircuitBreakerConfig
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes transaction files synchronously: Publish returns once
// the broker acknowledged the write at the configured acks level.
type Producer struct {
	writer  messageWriter
	topic   string
	breaker *resilience.CircuitBreaker
	logger  *logging.Logger
	now     func() time.Time
}

func NewProducer(cfg ProducerConfig, logger *logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer requires at least one broker")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka producer requires a topic")
	}
	acks, err := ParseRequiredAcks(cfg.Acks)
	if err != nil {
		return nil, err
	}
	codec, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: acks,
		Compression:  codec,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   cfg.BatchBytes,
		BatchTimeout: cfg.Linger,
		WriteTimeout: cfg.MessageTimeout,
		Transport: &kafkago.Transport{
			ClientID: cfg.ClientID,
		},
	}

	if logger == nil {
		logger = logging.Default()
	}
	breakerCfg := cfg.CircuitBreaker
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		logger.Warn("kafka circuit breaker state changed", "topic", cfg.Topic, "from", from, "to", to)
	}

	return newProducer(writer, cfg.Topic, resilience.NewCircuitBreaker(breakerCfg), logger), nil
}

func newProducer(writer messageWriter, topic string, breaker *resilience.CircuitBreaker, logger *logging.Logger) *Producer {
	if logger == nil {
		logger = logging.Default()
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Enabled: false})
	}
	return &Producer{
		writer:  writer,
		topic:   topic,
		breaker: breaker,
		logger:  logger,
		now:     time.Now,
	}
}

// Publish writes one message keyed by msg.Key. Every error it returns
// matches dispatch.ErrPublishFailure.
func (p *Producer) Publish(ctx context.Context, msg dispatch.TransactionMessage) error {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("messaging.kafka.message.key", msg.Key),
			attribute.Int("messaging.message.body.size", len(msg.Payload)),
		)
	}

	record := kafkago.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Payload,
		Headers: toKafkaHeaders(msg.Headers),
		Time:    p.now().UTC(),
	}

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.writer.WriteMessages(ctx, record)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			p.logger.WarnContext(ctx, "kafka circuit breaker rejected publish", "topic", p.topic, "key", msg.Key, "state", p.breaker.State())
		}
		return errors.Mark(errors.Wrapf(err, "publish key=%s topic=%s", msg.Key, p.topic), dispatch.ErrPublishFailure)
	}

	p.logger.DebugContext(ctx, "kafka message published", "topic", p.topic, "key", msg.Key, "bytes", len(msg.Payload))
	return nil
}

// Close flushes pending writes and releases broker connections.
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, "close kafka writer")
	}
	return nil
}
