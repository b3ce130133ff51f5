package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
)

type ConsumerConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	ClientID       string
	AutoCommit     bool
	FetchMaxBytes  int
	CommitInterval time.Duration
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads the dispatch topic as a member of a consumer group. With
// auto-commit enabled the reader commits on read and Commit is a no-op.
type Consumer struct {
	reader     messageReader
	autoCommit bool
	logger     *logging.Logger
}

func NewConsumer(cfg ConsumerConfig, logger *logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer requires at least one broker")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka consumer requires a topic")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka consumer requires a group id")
	}

	readerCfg := kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafkago.FirstOffset,
		Dialer: &kafkago.Dialer{
			ClientID:  cfg.ClientID,
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	}
	if cfg.FetchMaxBytes > 0 {
		readerCfg.MaxBytes = cfg.FetchMaxBytes
	}
	if cfg.AutoCommit {
		readerCfg.CommitInterval = cfg.CommitInterval
		if readerCfg.CommitInterval <= 0 {
			readerCfg.CommitInterval = 5 * time.Second
		}
	}

	return newConsumer(kafkago.NewReader(readerCfg), cfg.AutoCommit, logger), nil
}

func newConsumer(reader messageReader, autoCommit bool, logger *logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Consumer{reader: reader, autoCommit: autoCommit, logger: logger}
}

func (c *Consumer) AutoCommit() bool {
	return c.autoCommit
}

// Poll waits up to wait for the next message. A nil delivery with a nil
// error means nothing arrived in time. Cancellation of ctx is returned as ctx.Err().
func (c *Consumer) Poll(ctx context.Context, wait time.Duration) (*dispatch.Delivery, error) {
	pollCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var (
		msg kafkago.Message
		err error
	)
	if c.autoCommit {
		msg, err = c.reader.ReadMessage(pollCtx)
	} else {
		msg, err = c.reader.FetchMessage(pollCtx)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "fetch kafka message")
	}

	return toDelivery(msg), nil
}

func (c *Consumer) Commit(ctx context.Context, deliveries ...dispatch.Delivery) error {
	if c.autoCommit || len(deliveries) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, 0, len(deliveries))
	for _, d := range deliveries {
		msgs = append(msgs, kafkago.Message{
			Topic:     d.Topic,
			Partition: d.Partition,
			Offset:    d.Offset,
		})
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return errors.Wrapf(err, "commit %d kafka offset(s)", len(msgs))
	}
	return nil
}

func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return errors.Wrap(err, "close kafka reader")
	}
	return nil
}
